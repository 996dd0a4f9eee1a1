package taxonomy

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seed []byte

// Candidate — результат поиска.
type Candidate struct {
	Code  string  `json:"code"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Searcher — поиск по справочнику кодов.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Entry — запись справочника.
type Entry struct {
	Code     string   `yaml:"code"`
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
}

type seedFile struct {
	Entries []Entry `yaml:"entries"`
}

type indexedEntry struct {
	Entry
	terms map[string]bool
}

// MemoryIndex — Searcher в памяти. Только чтение после создания.
type MemoryIndex struct {
	entries []indexedEntry
	byCode  map[string]int
}

// NewMemoryIndex строит индекс по записям.
func NewMemoryIndex(entries []Entry) *MemoryIndex {
	idx := &MemoryIndex{byCode: make(map[string]int, len(entries))}
	for _, e := range entries {
		terms := make(map[string]bool)
		for _, t := range Tokenize(e.Title) {
			terms[t] = true
		}
		for _, k := range e.Keywords {
			for _, t := range Tokenize(k) {
				terms[t] = true
			}
		}
		idx.byCode[e.Code] = len(idx.entries)
		idx.entries = append(idx.entries, indexedEntry{Entry: e, terms: terms})
	}
	return idx
}

// ParseEntries разбирает YAML-справочник.
func ParseEntries(data []byte) ([]Entry, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	return f.Entries, nil
}

// LoadFile загружает индекс из YAML-файла.
func LoadFile(path string) (*MemoryIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	entries, err := ParseEntries(data)
	if err != nil {
		return nil, err
	}
	return NewMemoryIndex(entries), nil
}

// Default возвращает индекс по встроенному справочнику.
func Default() *MemoryIndex {
	entries, err := ParseEntries(seed)
	if err != nil {
		panic(err)
	}
	return NewMemoryIndex(entries)
}

// Entries возвращает записи индекса (для загрузки в Postgres).
func (m *MemoryIndex) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Entry
	}
	return out
}

// Search ищет записи. Score — доля слов запроса, найденных в записи.
func (m *MemoryIndex) Search(_ context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 10
	}

	if IsCode(query) {
		i, ok := m.byCode[strings.TrimSpace(query)]
		if !ok {
			return nil, nil
		}
		e := m.entries[i]
		return []Candidate{{Code: e.Code, Title: e.Title, Score: 1}}, nil
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var out []Candidate
	for _, e := range m.entries {
		hits := 0
		for _, t := range terms {
			if e.terms[t] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, Candidate{
			Code:  e.Code,
			Title: e.Title,
			Score: float64(hits) / float64(len(terms)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		// при равенстве — более конкретный код
		return out[i].Code > out[j].Code
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IsCode — запрос является 8-значным кодом.
func IsCode(query string) bool {
	q := strings.TrimSpace(query)
	if len(q) != 8 {
		return false
	}
	for _, r := range q {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Tokenize разбивает текст на слова в нижнем регистре, отбрасывая
// слова короче двух символов.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}
