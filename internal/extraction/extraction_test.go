// SPDX-License-Identifier: Apache-2.0

package extraction_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// ---------------------------------------------------------------------------
// IsComplete
// ---------------------------------------------------------------------------

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name    string
		section string
		full    string
		want    bool
	}{
		{
			name:    "completion sentinel wins",
			section: `{"headers":["a"`,
			full:    "text ---DATA--- {\"headers\":[\"a\" __STREAM_COMPLETE__",
			want:    true,
		},
		{
			name:    "phase complete marker wins",
			section: "",
			full:    "[PHASE:COMPLETE]",
			want:    true,
		},
		{
			name:    "stream end marker wins",
			section: "garbage",
			full:    "garbage [STREAM_END]",
			want:    true,
		},
		{
			name:    "closed object with headers",
			section: `{"headers":["a"],"rows":[["x"]]}`,
			full:    "",
			want:    true,
		},
		{
			name:    "closed object ending in quote brace",
			section: `  {"Rows":"x"}  `,
			full:    "",
			want:    true,
		},
		{
			name:    "still streaming",
			section: `{"headers":["a"],"rows":[["x"]`,
			full:    "",
			want:    false,
		},
		{
			name:    "array payload is not considered",
			section: `[{"headers":1}]`,
			full:    "",
			want:    false,
		},
		{
			name:    "closed object without tabular keys",
			section: `{"a":{"b":1}}`,
			full:    "",
			want:    false,
		},
		{
			name:    "non-terminal phase marker is ignored",
			section: `{"headers":["a"],"rows":[]}[PHASE:STRUCTURING]`,
			full:    "[PHASE:STRUCTURING]",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extraction.IsComplete(tt.section, tt.full))
		})
	}
}

// ---------------------------------------------------------------------------
// ExtractSection / Prose
// ---------------------------------------------------------------------------

func TestExtractSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantOK  bool
	}{
		{"no marker", "hello there", "", false},
		{"marker without payload", "hello ---DATA---   ", "", false},
		{"marker with only sentinel", "hello ---DATA--- __STREAM_COMPLETE__", "", false},
		{"payload is trimmed", "Here you go\n---DATA---\n {\"rows\":[]} \n", `{"rows":[]}`, true},
		{"sentinel stripped", "x ---DATA---{\"rows\":[]}__STREAM_COMPLETE__", `{"rows":[]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extraction.ExtractSection(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractSection_Idempotent(t *testing.T) {
	content := "[PHASE:STRUCTURING] Teams below ---DATA--- {\"headers\":[\"a\"]"
	first, ok1 := extraction.ExtractSection(content)
	second, ok2 := extraction.ExtractSection(content)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)

	grown, ok := extraction.ExtractSection(content + `,"rows":[]}`)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(grown, first))
}

func TestProse(t *testing.T) {
	assert.Equal(t, "Teams below", extraction.Prose("[PHASE:SEARCHING] Teams below ---DATA--- {}"))
	assert.Equal(t, "no data", extraction.Prose("no data[STREAM_END]"))
}

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func TestParse_Direct(t *testing.T) {
	p := extraction.Parse(`{"headers":["Name","City"],"rows":[["Lions","Detroit"]]}`)
	assert.Equal(t, extraction.StrategyDirect, p.Strategy)
	assert.False(t, p.Recovered)
	assert.False(t, p.IsRaw())

	got := table.Normalize(p.Value)
	assert.Equal(t, []string{"Name", "City"}, got.Headers)
}

func TestParse_StripsControlTokens(t *testing.T) {
	p := extraction.Parse(`[PHASE:STRUCTURING]{"rows":[{"a":1}]}__STREAM_COMPLETE__`)
	assert.Equal(t, extraction.StrategyDirect, p.Strategy)
}

func TestParse_TruncatedStream(t *testing.T) {
	p := extraction.Parse(`{"headers":["name"],"rows":[["Lakers"]`)

	switch p.Strategy {
	case extraction.StrategyDegraded:
		assert.True(t, p.Recovered)
	default:
		require.False(t, p.IsRaw())
		got := table.Normalize(p.Value)
		assert.Equal(t, []string{"name"}, got.Headers)
		assert.Equal(t, [][]any{{"Lakers"}}, got.Rows)
	}
	assert.Equal(t, extraction.StrategyTruncateClose, p.Strategy)
}

func TestParse_TruncatesTrailingNoise(t *testing.T) {
	p := extraction.Parse(`{"headers":["a"],"rows":[["x"]]} and then the model kept talking`)
	assert.Equal(t, extraction.StrategyTruncate, p.Strategy)
	assert.Equal(t, [][]any{{"x"}}, table.Normalize(p.Value).Rows)
}

func TestParse_ClosesOpenString(t *testing.T) {
	p := extraction.Parse(`{"rows":[{"team":"Lak`)
	assert.Equal(t, extraction.StrategyClose, p.Strategy)
	got := table.Normalize(p.Value)
	assert.Equal(t, []string{"team"}, got.Headers)
	assert.Equal(t, [][]any{{"Lak"}}, got.Rows)
}

func TestParse_DegradedRow(t *testing.T) {
	text := `{"headers": ["a"], "rows": [["x" "y"]]}`
	p := extraction.Parse(text)
	require.Equal(t, extraction.StrategyDegraded, p.Strategy)
	assert.True(t, p.Recovered)

	got := table.Normalize(p.Value)
	assert.Equal(t, []string{"Data"}, got.Headers)
	assert.Equal(t, [][]any{{text}}, got.Rows)
}

func TestParse_Raw(t *testing.T) {
	for _, input := range []string{"", "just words", "{short}", "a long sentence without any structure in it"} {
		p := extraction.Parse(input)
		assert.True(t, p.IsRaw(), "input %q", input)
		assert.Equal(t, input, p.Raw)
		assert.Nil(t, p.Value)
	}
}

func TestParse_NeverPanics(t *testing.T) {
	inputs := []string{
		"", "{", "}", "[[[[", `"`, `\`, `{"a":"\`, `{"headers":`, `{"rows":[1,2,`,
		strings.Repeat("[", 10000), strings.Repeat("{\"a\":", 2000),
		"\x00\xff", `{"headers":["a"],"rows":[["x"]]}}}}`,
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { extraction.Parse(input) }, "input %q", input)
	}
}
