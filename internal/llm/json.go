package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON разбирает первый JSON-объект из ответа модели в v.
// Допускает markdown-ограждение и текст вокруг объекта.
func ExtractJSON(text string, v any) error {
	body := strings.TrimSpace(text)
	if fenced, ok := stripFence(body); ok {
		body = fenced
	}

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no json object", ErrInvalidResponse)
	}

	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func stripFence(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open < 0 {
		return "", false
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	closing := strings.Index(rest, "```")
	if closing < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:closing]), true
}
