// Package hitl — очередь ручной проверки и протокол возобновления.
//
// Элемент создаётся для записи с вердиктом flagged/rejected или
// уверенностью ниже 50. Жизненный цикл элемента:
//
//	pending → decided (один необратимый переход)
//
// Решение (approve, modify, reject, escalate) записывается append-only.
// reject оставляет классификацию в журнале, но запись дальше считается
// неклассифицированной; escalate снимает блокировку без итоговой
// классификации.
package hitl
