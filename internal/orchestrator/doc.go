// Package orchestrator ведёт сессию по стадиям конвейера.
//
// Один ход (Submit или Resume) — это цикл: роутер выбирает стадию,
// обработчик стадии выполняет операции над элементами, результаты
// сливаются в SessionState редьюсерами, состояние сохраняется в
// чекпоинт. Цикл заканчивается на терминальной для хода стадии:
// respond, complete или error.
//
// Пауза на ручную проверку не держит горутин: состояние лежит в
// чекпоинте с AwaitingDecision, а Resume продолжает с точки решения.
//
// Ходы одной сессии не пересекаются: второй вызов получает ErrSessionBusy.
package orchestrator
