package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict — чекпоинт сохранён другим писателем
	// после того, как текущая версия была загружена.
	ErrVersionConflict = errors.New("checkpoint version conflict")
)
