// SPDX-License-Identifier: Apache-2.0

package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/88dreams/SheetGPT-sub005/internal/cache"
	"github.com/88dreams/SheetGPT-sub005/internal/engine"
	"github.com/88dreams/SheetGPT-sub005/internal/entity"
	"github.com/88dreams/SheetGPT-sub005/internal/events"
	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []events.ExtractionCompleted
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt events.ExtractionCompleted) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

const teamsMessage = "Here are the teams.\n---DATA---\n" +
	`{"headers":["Team Name","City","League","Arena"],"rows":[["Lakers","Los Angeles","NBA","Crypto.com Arena"],["Celtics","Boston","NBA","TD Garden"]]}` +
	"\n__STREAM_COMPLETE__"

func newPipeline(t *testing.T) (*engine.Pipeline, *cache.Memory, *fakePublisher) {
	t.Helper()
	mem := cache.NewMemory(time.Minute, time.Minute)
	pub := &fakePublisher{}
	p := engine.NewPipeline(rules.Default(),
		engine.WithCache(mem, time.Minute),
		engine.WithPublisher(pub),
		engine.WithLogger(zap.NewNop()),
	)
	return p, mem, pub
}

func message(id, content string) extraction.RawMessage {
	return extraction.RawMessage{
		ID:             id,
		Role:           extraction.RoleAssistant,
		Content:        content,
		ConversationID: "conv-1",
		CreatedAt:      time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Process
// ---------------------------------------------------------------------------

func TestProcess_CompleteTeamTable(t *testing.T) {
	p, _, pub := newPipeline(t)

	got, err := p.Process(context.Background(), message("m1", teamsMessage), true)
	require.NoError(t, err)

	assert.True(t, got.Found)
	assert.False(t, got.Pending)
	assert.False(t, got.Recovered)
	assert.Equal(t, "Here are the teams.", got.Prose)
	assert.Equal(t, extraction.StrategyDirect, got.Strategy)
	assert.Equal(t, "standard", got.Shape)
	assert.Equal(t, []string{"Team Name", "City", "League", "Arena"}, got.Table.Headers)
	require.Len(t, got.Records, 2)
	assert.Equal(t, "row-1", got.Records[1].ID)
	assert.Equal(t, "TD Garden", got.Records[1].Get("Arena"))

	assert.True(t, got.Classification.IsMatch)
	assert.Equal(t, "team", got.Classification.EntityType)
	assert.InDelta(t, 0.75, got.Classification.Confidence, 1e-9)
	assert.Equal(t, map[string]string{
		"Team Name": "name",
		"City":      "city",
		"League":    "league_id",
		"Arena":     "stadium_id",
	}, got.Recommendation)

	require.Equal(t, 1, pub.count())
	evt := pub.events[0]
	assert.Equal(t, "m1", evt.MessageID)
	assert.Equal(t, "conv-1", evt.ConversationID)
	assert.Equal(t, "team", evt.EntityType)
	assert.Equal(t, 4, evt.Columns)
	assert.Equal(t, 2, evt.Rows)
}

func TestProcess_NoDataSection(t *testing.T) {
	p, _, pub := newPipeline(t)

	got, err := p.Process(context.Background(), message("m1", "[PHASE:SEARCHING] Just chatting."), true)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.False(t, got.Pending)
	assert.Equal(t, "Just chatting.", got.Prose)
	assert.Empty(t, got.Records)
	assert.Zero(t, pub.count())
}

func TestProcess_StreamingIsPendingUntilComplete(t *testing.T) {
	p, _, pub := newPipeline(t)
	partial := `Teams ---DATA--- {"headers":["name"],"rows":[["Lakers"]`

	got, err := p.Process(context.Background(), message("m1", partial), false)
	require.NoError(t, err)
	assert.True(t, got.Pending)
	assert.False(t, got.Found)

	got, err = p.Process(context.Background(), message("m1", partial+"]}"), false)
	require.NoError(t, err)
	assert.False(t, got.Pending)
	assert.True(t, got.Found)
	assert.Zero(t, pub.count(), "non-final results are not published")

	got, err = p.Process(context.Background(), message("m1", partial), true)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, extraction.StrategyTruncateClose, got.Strategy)
	assert.Equal(t, [][]any{{"Lakers"}}, got.Table.Rows)
}

func TestProcess_CachesFinalResults(t *testing.T) {
	p, mem, pub := newPipeline(t)
	ctx := context.Background()

	first, err := p.Process(ctx, message("m1", teamsMessage), true)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	_, err = mem.Get(ctx, "extraction:m1")
	require.NoError(t, err)

	second, err := p.Process(ctx, message("m1", teamsMessage), true)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Table, second.Table)
	assert.Equal(t, first.Classification, second.Classification)
	assert.Equal(t, first.Recommendation, second.Recommendation)
	require.Len(t, second.Records, len(first.Records))
	assert.Equal(t, first.Records[0].Get("Team Name"), second.Records[0].Get("Team Name"))
	assert.Equal(t, 1, pub.count())

	require.NoError(t, p.Forget(ctx, "m1"))
	third, err := p.Process(ctx, message("m1", teamsMessage), true)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, pub.count())
}

func TestProcess_CacheHitUsesCurrentRules(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()

	first, err := p.Process(ctx, message("m1", teamsMessage), true)
	require.NoError(t, err)
	require.True(t, first.Classification.IsMatch)
	assert.Equal(t, "team", first.Classification.EntityType)

	r := rules.Default()
	r.Threshold = 0.99
	league, ok := r.Entity("league")
	require.True(t, ok)
	r.Entities = []rules.Entity{league}
	p.SetRules(r)

	second, err := p.Process(ctx, message("m1", teamsMessage), true)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Table, second.Table)
	assert.Equal(t, p.Classify(second.Table.Headers), second.Classification)
	assert.False(t, second.Classification.IsMatch)
	assert.Nil(t, second.Recommendation)
}

func TestProcess_ScalarSectionKeepsRawText(t *testing.T) {
	p, mem, pub := newPipeline(t)
	ctx := context.Background()

	got, err := p.Process(ctx, message("m4", "The answer ---DATA--- 42"), true)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, extraction.StrategyDirect, got.Strategy)
	assert.Equal(t, "42", got.Raw)

	_, err = mem.Get(ctx, "extraction:m4")
	assert.ErrorIs(t, err, cache.ErrMiss)
	assert.Zero(t, pub.count())
}

func TestProcess_DegradedIsNotCached(t *testing.T) {
	p, mem, pub := newPipeline(t)
	ctx := context.Background()
	content := `---DATA--- {"headers": ["a"], "rows": [["x" "y"]]}`

	got, err := p.Process(ctx, message("m2", content), true)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.True(t, got.Recovered)
	assert.Equal(t, []string{"Data"}, got.Table.Headers)

	_, err = mem.Get(ctx, "extraction:m2")
	assert.ErrorIs(t, err, cache.ErrMiss)
	assert.Zero(t, pub.count())
}

func TestProcess_RawSection(t *testing.T) {
	p, _, _ := newPipeline(t)

	got, err := p.Process(context.Background(), message("m3", "Sorry ---DATA--- nothing here"), true)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, extraction.StrategyRaw, got.Strategy)
	assert.Equal(t, "nothing here", got.Raw)
}

func TestProcess_Errors(t *testing.T) {
	p, _, _ := newPipeline(t)

	_, err := p.Process(context.Background(), message("m1", "   "), true)
	assert.ErrorIs(t, err, engine.ErrEmptyContent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Process(ctx, message("m1", teamsMessage), true)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_PublishFailureDoesNotFail(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	p := engine.NewPipeline(rules.Default(), engine.WithPublisher(pub))

	got, err := p.Process(context.Background(), message("m1", teamsMessage), true)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, 1, pub.count())
}

func TestProcess_WithoutMessageIDSkipsCache(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()

	for range 2 {
		got, err := p.Process(ctx, message("", teamsMessage), true)
		require.NoError(t, err)
		assert.False(t, got.Cached)
	}
}

// ---------------------------------------------------------------------------
// Rules snapshot
// ---------------------------------------------------------------------------

func TestSetRules(t *testing.T) {
	p := engine.NewPipeline(rules.Default())
	fields := []string{"team_name", "team_city", "team_league_id"}
	require.True(t, p.Classify(fields).IsMatch)

	r := rules.Default()
	r.Threshold = 1
	p.SetRules(r)
	assert.False(t, p.Classify(fields).IsMatch)
	assert.InDelta(t, 1.0, p.Rules().Threshold, 1e-9)
}

func TestNormalize_UsesConfiguredAllowList(t *testing.T) {
	square := table.Table{
		Headers: []string{"Team", "B"},
		Rows:    [][]any{{"x", "y"}, {"z", "w"}},
	}
	data := map[string]any{"headers": []any{"Team", "B"}, "rows": []any{[]any{"x", "y"}, []any{"z", "w"}}}

	p := engine.NewPipeline(rules.Default())
	assert.False(t, p.Normalize(data).Transposed)
	assert.Equal(t, square.Rows, p.Normalize(data).Table.Rows)

	r := rules.Default()
	r.TransposeAllowList = []string{}
	p.SetRules(r)
	res := p.Normalize(data)
	assert.True(t, res.Transposed)
	assert.Equal(t, [][]any{{"x", "z"}, {"y", "w"}}, res.Table.Rows)
}

func TestRecommendAndMissingRequired(t *testing.T) {
	p := engine.NewPipeline(rules.Default())

	rec := p.Recommend([]string{"Team Name", "City"}, "team")
	missing, ok := p.MissingRequired("team", entity.MappingFromRecommendation(rec))
	require.True(t, ok)
	assert.Equal(t, []string{"league_id", "stadium_id"}, missing)

	_, ok = p.MissingRequired("spaceship", nil)
	assert.False(t, ok)
}
