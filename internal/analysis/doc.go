// Package analysis строит аналитический отчёт по сессии: суммы по
// сегментам UNSPSC, распределение вердиктов, счётчики проверки и ошибок,
// текстовое резюме от модели.
package analysis
