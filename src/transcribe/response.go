package transcribe

import (
	"encoding/json"
	"strings"
	"time"
)

// Row is one recognised line, in backend order.
type Row struct {
	LineNumber int    `json:"line_no"`
	Content    string `json:"content"`
}

// Result is a decoded backend response. Rows is never nil; an empty
// slice means no text was detected.
type Result struct {
	Rows           []Row         `json:"rows"`
	ProcessingTime time.Duration `json:"-"`
}

// Text joins the row contents with newlines.
func (r *Result) Text() string {
	parts := make([]string, len(r.Rows))
	for i, row := range r.Rows {
		parts[i] = row.Content
	}
	return strings.Join(parts, "\n")
}

// Empty reports whether no text was recognised.
func (r *Result) Empty() bool {
	for _, row := range r.Rows {
		if strings.TrimSpace(row.Content) != "" {
			return false
		}
	}
	return true
}

// The flat-text keys in the order they are consulted after "rows".
var textKeys = []string{"text", "result", "ocrText"}

// ParseResponse decodes any of the accepted response shapes:
//
//	{"rows":[{"line_no":1,"content":"..."}],"processing_time_ms":12}
//	{"text":"..."}  {"result":"..."}  {"ocrText":"..."}
//
// The first non-empty field in that order wins. Anything else, including
// {}, yields zero rows.
func ParseResponse(body []byte) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	res := &Result{Rows: []Row{}}
	if raw, ok := fields["processing_time_ms"]; ok {
		var ms float64
		if json.Unmarshal(raw, &ms) == nil && ms > 0 {
			res.ProcessingTime = time.Duration(ms * float64(time.Millisecond))
		}
	}

	if raw, ok := fields["rows"]; ok {
		var rows []struct {
			LineNumber *int   `json:"line_no"`
			Content    string `json:"content"`
		}
		if err := json.Unmarshal(raw, &rows); err == nil && len(rows) > 0 {
			for i, r := range rows {
				n := i + 1
				if r.LineNumber != nil {
					n = *r.LineNumber
				}
				res.Rows = append(res.Rows, Row{LineNumber: n, Content: r.Content})
			}
			return res, nil
		}
	}

	for _, key := range textKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) != nil || s == "" {
			continue
		}
		res.Rows = SplitRows(s)
		return res, nil
	}
	return res, nil
}

// SplitRows turns flat text into numbered rows, one per line. Trailing
// blank lines are dropped; blank lines in between are kept.
func SplitRows(text string) []Row {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	rows := make([]Row, len(lines))
	for i, l := range lines {
		rows[i] = Row{LineNumber: i + 1, Content: l}
	}
	return rows
}
