package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает сессии и очередь проверки: таблицу в stdout
// или JSON с флагом --json. Сводка хода и уведомления идут в stderr,
// чтобы stdout оставался пригодным для jq.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout и stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Session печатает классификации с вердиктами QA и строку сводки.
// В режиме JSON печатается весь снимок без сводки.
func (o *Output) Session(s *SessionResponse) {
	if o.jsonMode {
		o.writeJSON(s)
		return
	}

	verdicts := make(map[string]string, len(s.QAResults))
	for _, qa := range s.QAResults {
		verdicts[qa.ClassificationID] = qa.Verdict
	}
	rows := make([][]string, len(s.Classifications))
	for i, c := range s.Classifications {
		rows[i] = []string{c.RecordID, c.Code, c.Title, confidence(c.Confidence), c.Source, verdicts[c.RecordID]}
	}
	o.table([]string{"RECORD", "CODE", "TITLE", "CONFIDENCE", "SOURCE", "VERDICT"}, rows)

	o.Notice(fmt.Sprintf("Session %s: stage %s, %d pending review, %d error(s)",
		s.SessionID, s.Stage, s.PendingReview, len(s.Errors)))
	if s.Response != "" {
		o.Notice(s.Response)
	}
}

// Queue печатает нерешённые элементы проверки в порядке API.
func (o *Output) Queue(items []HITLItemResponse) {
	if o.jsonMode {
		o.writeJSON(items)
		return
	}

	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{it.ID, it.RecordID, it.Priority, it.Verdict, confidence(it.Confidence), it.Reason}
	}
	o.table([]string{"ID", "RECORD", "PRIORITY", "VERDICT", "CONFIDENCE", "REASON"}, rows)
}

// Notice печатает сообщение для человека в stderr.
func (o *Output) Notice(msg string) {
	fmt.Fprintln(o.errW, msg)
}

func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func (o *Output) writeJSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Notice("Error: encode output: " + err.Error())
	}
}

// confidence форматирует уверенность 0–100 без дробной части.
func confidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}
