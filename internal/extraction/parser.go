// SPDX-License-Identifier: Apache-2.0

package extraction

import (
	"strings"

	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// Strategy records which attempt produced a ParsedData.
type Strategy string

const (
	StrategyDirect        Strategy = "direct"
	StrategyTruncate      Strategy = "truncate"
	StrategyTruncateClose Strategy = "truncate+close"
	StrategyClose         Strategy = "close"
	StrategyDegraded      Strategy = "degraded"
	StrategyRaw           Strategy = "raw"
)

// minDegradedLength is the shortest unparseable text still shown to the user
// as a degraded single-cell table.
const minDegradedLength = 20

// ParsedData is the best-effort result of parsing a data section.
//
// Value holds the decoded payload (see table.Decode) for every strategy
// except StrategyRaw, where Raw holds the original text instead. Recovered
// marks a degraded payload the caller should warn about.
type ParsedData struct {
	Value     any      `json:"value,omitempty"`
	Raw       string   `json:"raw,omitempty"`
	Recovered bool     `json:"recovered"`
	Strategy  Strategy `json:"strategy"`
}

// IsRaw reports whether no structure could be recovered at all.
func (p ParsedData) IsRaw() bool {
	return p.Strategy == StrategyRaw
}

// attempt rewrites the text before a decode. ok=false skips the attempt.
type attempt struct {
	strategy Strategy
	prepare  func(text string) (string, bool)
}

// attempts are tried in order; the first candidate that decodes wins.
var attempts = []attempt{
	{StrategyDirect, func(s string) (string, bool) { return s, true }},
	{StrategyTruncate, func(s string) (string, bool) {
		cut, ok := truncateAtLastCloser(s)
		return cut, ok && cut != s
	}},
	{StrategyTruncateClose, func(s string) (string, bool) {
		cut, ok := truncateAtLastCloser(s)
		if !ok {
			return "", false
		}
		closed := closeOpenBrackets(cut)
		return closed, closed != cut
	}},
	{StrategyClose, func(s string) (string, bool) {
		closed := closeOpenBrackets(s)
		return closed, closed != s
	}},
}

// Parse never fails: it returns a decoded payload, a degraded single-cell
// table flagged Recovered, or the raw text.
func Parse(section string) ParsedData {
	text := strings.TrimSpace(StripControlTokens(section))

	if text != "" {
		for _, a := range attempts {
			candidate, ok := a.prepare(text)
			if !ok {
				continue
			}
			if v, err := table.Decode([]byte(candidate)); err == nil {
				return ParsedData{Value: v, Strategy: a.strategy}
			}
		}
	}

	if len(text) >= minDegradedLength && strings.ContainsAny(text, "{}[]") &&
		containsAny(text, `"headers"`, `"Headers"`, `"rows"`, `"Rows"`) {
		return ParsedData{Value: degraded(text), Recovered: true, Strategy: StrategyDegraded}
	}

	return ParsedData{Raw: section, Strategy: StrategyRaw}
}

func degraded(text string) table.Object {
	return table.Object{
		{Key: "headers", Value: []any{"Data"}},
		{Key: "rows", Value: []any{[]any{text}}},
		{Key: "meta", Value: table.Object{{Key: "recovered", Value: true}}},
	}
}

func truncateAtLastCloser(s string) (string, bool) {
	idx := strings.LastIndexAny(s, "}]")
	if idx < 0 {
		return "", false
	}
	return s[:idx+1], true
}

// closeOpenBrackets appends the quote and closers needed to balance s,
// ignoring brackets inside strings. Dangling commas are dropped first.
func closeOpenBrackets(s string) string {
	var stack []byte
	inString, escaped := false, false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	if inString {
		b.WriteString(s)
		if escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	} else {
		b.WriteString(strings.TrimRight(s, ", \t\r\n"))
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
