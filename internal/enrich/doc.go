// Package enrich обогащает итоговые классификации: иерархия UNSPSC
// (сегмент, семейство, класс) с названиями из справочника и диапазон суммы.
package enrich
