// SPDX-License-Identifier: Apache-2.0

// Package engine runs chat messages through the full extraction pipeline:
// completion gate, data section, parse, normalize, row projection,
// classification and mapping recommendation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/88dreams/SheetGPT-sub005/internal/cache"
	"github.com/88dreams/SheetGPT-sub005/internal/entity"
	"github.com/88dreams/SheetGPT-sub005/internal/events"
	"github.com/88dreams/SheetGPT-sub005/internal/extraction"
	"github.com/88dreams/SheetGPT-sub005/internal/rules"
	"github.com/88dreams/SheetGPT-sub005/internal/table"
)

// ErrEmptyContent is returned by Process for a message with no content.
var ErrEmptyContent = errors.New("message has no content")

const cacheKeyPrefix = "extraction:"

// Extraction is everything the UI needs to render one message's data.
type Extraction struct {
	MessageID string `json:"message_id,omitempty"`
	// Found is false when the message holds no usable structured data.
	Found bool `json:"found"`
	// Pending means a data section exists but is still streaming.
	Pending bool   `json:"pending"`
	Prose   string `json:"prose,omitempty"`
	// Raw keeps an unparseable data section for display.
	Raw string `json:"raw,omitempty"`
	// Recovered marks a degraded single-cell table the user should be
	// warned about.
	Recovered      bool                `json:"recovered"`
	Strategy       extraction.Strategy `json:"strategy,omitempty"`
	Shape          string              `json:"shape,omitempty"`
	Transposed     bool                `json:"transposed"`
	AdjustedRows   []int               `json:"adjusted_rows,omitempty"`
	Table          table.Table         `json:"table"`
	Records        []table.RowRecord   `json:"records"`
	Classification entity.Result       `json:"classification"`
	Recommendation map[string]string   `json:"recommendation,omitempty"`
	Cached         bool                `json:"cached"`
}

// snapshot is one consistent set of rule-derived components.
type snapshot struct {
	rules       rules.Rules
	normalizer  *table.Normalizer
	classifier  *entity.Classifier
	recommender *entity.Recommender
}

func newSnapshot(r rules.Rules) *snapshot {
	return &snapshot{
		rules:       r,
		normalizer:  table.NewNormalizer(r.TransposeAllowList),
		classifier:  entity.NewClassifier(r),
		recommender: entity.NewRecommender(r),
	}
}

// Pipeline is the single entry point every surface (MCP, HTTP, CLI) goes
// through. It is safe for concurrent use; SetRules swaps the rule snapshot
// atomically.
type Pipeline struct {
	current   atomic.Pointer[snapshot]
	cache     cache.Cache
	cacheTTL  time.Duration
	publisher events.Publisher
	log       *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache stores finalized extractions in c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = c
		p.cacheTTL = ttl
	}
}

// WithPublisher announces finalized extractions.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPipeline creates a Pipeline running on r.
func NewPipeline(r rules.Rules, opts ...Option) *Pipeline {
	p := &Pipeline{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(newSnapshot(r))
	return p
}

// SetRules replaces the rules used by subsequent calls.
func (p *Pipeline) SetRules(r rules.Rules) {
	p.current.Store(newSnapshot(r))
	p.log.Info("engine rules updated", zap.Strings("entities", r.EntityTypes()), zap.Float64("threshold", r.Threshold))
}

// Rules returns the rules currently in effect.
func (p *Pipeline) Rules() rules.Rules {
	return p.current.Load().rules
}

// Process extracts the structured data carried by msg. While a message is
// still streaming, pass final=false: an incomplete data section yields a
// Pending result instead of a parse attempt. Only final, non-degraded
// results are cached and published.
func (p *Pipeline) Process(ctx context.Context, msg extraction.RawMessage, final bool) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	if strings.TrimSpace(msg.Content) == "" {
		return Extraction{}, ErrEmptyContent
	}
	if hit, ok := p.lookup(ctx, msg.ID); ok {
		return hit, nil
	}

	out := Extraction{
		MessageID: msg.ID,
		Prose:     extraction.Prose(msg.Content),
		Table:     table.Table{Headers: []string{}, Rows: [][]any{}},
		Records:   []table.RowRecord{},
	}

	section, ok := extraction.ExtractSection(msg.Content)
	if !ok {
		return out, nil
	}
	if !final && !extraction.IsComplete(section, msg.Content) {
		p.log.Debug("data section incomplete", zap.String("message_id", msg.ID), zap.Int("length", len(section)))
		out.Pending = true
		return out, nil
	}

	parsed := extraction.Parse(section)
	out.Strategy = parsed.Strategy
	out.Recovered = parsed.Recovered
	if parsed.IsRaw() {
		out.Raw = parsed.Raw
		p.log.Debug("no structured data", zap.String("message_id", msg.ID))
		return out, nil
	}

	snap := p.current.Load()
	res := snap.normalizer.Normalize(parsed.Value)
	p.fill(snap, &out, res)
	if !out.Found {
		out.Raw = section
	}

	if parsed.Recovered {
		p.log.Warn("structured data recovered in degraded form",
			zap.String("message_id", msg.ID), zap.Int("length", len(section)))
	}
	if final && !parsed.Recovered && out.Found {
		p.log.Info("extraction completed",
			zap.String("message_id", msg.ID),
			zap.String("shape", out.Shape),
			zap.String("strategy", string(out.Strategy)),
			zap.Int("rows", len(out.Table.Rows)),
			zap.String("entity_type", out.Classification.EntityType))
		p.store(ctx, out)
		p.publish(ctx, msg, out)
	}
	return out, nil
}

func (p *Pipeline) fill(snap *snapshot, out *Extraction, res table.Result) {
	out.Found = !res.Table.Empty()
	out.Shape = res.Shape.String()
	out.Transposed = res.Transposed
	out.AdjustedRows = res.Adjusted
	out.Table = res.Table
	out.Records = table.ToRowObjects(res.Table)
	classify(snap, out)
}

// classify derives the classification and recommendation from the table
// headers under snap. Neither is ever cached.
func classify(snap *snapshot, out *Extraction) {
	out.Classification = snap.classifier.Classify(out.Table.Headers)
	out.Recommendation = nil
	if out.Classification.IsMatch {
		out.Recommendation = snap.recommender.Recommend(out.Table.Headers, out.Classification.EntityType)
	}
}

// Normalize converts any supported shape with the current allow-list.
func (p *Pipeline) Normalize(data any) table.Result {
	return p.current.Load().normalizer.Normalize(data)
}

// Normalized is the externally visible form of a normalization: the table,
// its row records and what the normalizer had to do.
type Normalized struct {
	Table      table.Table       `json:"table"`
	Records    []table.RowRecord `json:"records"`
	Shape      string            `json:"shape"`
	Transposed bool              `json:"transposed"`
	// AdjustedRows lists rows padded or truncated to the header count.
	AdjustedRows []int `json:"adjusted_rows,omitempty"`
}

// NewNormalized projects res into its externally visible form.
func NewNormalized(res table.Result) Normalized {
	return Normalized{
		Table:        res.Table,
		Records:      table.ToRowObjects(res.Table),
		Shape:        res.Shape.String(),
		Transposed:   res.Transposed,
		AdjustedRows: res.Adjusted,
	}
}

// Classify guesses the entity type of fields.
func (p *Pipeline) Classify(fields []string) entity.Result {
	return p.current.Load().classifier.Classify(fields)
}

// Scores reports every entity type's standing for fields.
func (p *Pipeline) Scores(fields []string) []entity.Score {
	return p.current.Load().classifier.Scores(fields)
}

// Recommend proposes a source→target mapping for a confirmed entity type.
func (p *Pipeline) Recommend(fields []string, entityType string) map[string]string {
	return p.current.Load().recommender.Recommend(fields, entityType)
}

// MissingRequired lists the required target fields mapping leaves unset.
// ok is false for an unknown entity type.
func (p *Pipeline) MissingRequired(entityType string, mapping entity.FieldMapping) (missing []string, ok bool) {
	e, ok := p.Rules().Entity(entityType)
	if !ok {
		return nil, false
	}
	return entity.MissingRequired(e, mapping), true
}

// Forget drops any cached extraction for a message, e.g. after an edit.
func (p *Pipeline) Forget(ctx context.Context, messageID string) error {
	if p.cache == nil || messageID == "" {
		return nil
	}
	return p.cache.Delete(ctx, cacheKeyPrefix+messageID)
}

// cachedExtraction is the stored parse and normalize output. Records,
// classification and recommendation are rebuilt on every hit so a rules
// reload applies to cached messages too.
type cachedExtraction struct {
	MessageID    string              `json:"message_id"`
	Prose        string              `json:"prose,omitempty"`
	Strategy     extraction.Strategy `json:"strategy"`
	Shape        string              `json:"shape"`
	Transposed   bool                `json:"transposed"`
	AdjustedRows []int               `json:"adjusted_rows,omitempty"`
	Table        table.Table         `json:"table"`
}

func (p *Pipeline) lookup(ctx context.Context, messageID string) (Extraction, bool) {
	if p.cache == nil || messageID == "" {
		return Extraction{}, false
	}
	data, err := p.cache.Get(ctx, cacheKeyPrefix+messageID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			p.log.Warn("extraction cache read failed", zap.String("message_id", messageID), zap.Error(err))
		}
		return Extraction{}, false
	}

	var c cachedExtraction
	if err := json.Unmarshal(data, &c); err != nil {
		p.log.Warn("discarding unreadable cached extraction", zap.String("message_id", messageID), zap.Error(err))
		return Extraction{}, false
	}
	out := Extraction{
		MessageID:    c.MessageID,
		Found:        true,
		Prose:        c.Prose,
		Strategy:     c.Strategy,
		Shape:        c.Shape,
		Transposed:   c.Transposed,
		AdjustedRows: c.AdjustedRows,
		Table:        c.Table,
		Records:      table.ToRowObjects(c.Table),
		Cached:       true,
	}
	classify(p.current.Load(), &out)
	return out, true
}

func (p *Pipeline) store(ctx context.Context, out Extraction) {
	if p.cache == nil || out.MessageID == "" {
		return
	}
	data, err := json.Marshal(cachedExtraction{
		MessageID:    out.MessageID,
		Prose:        out.Prose,
		Strategy:     out.Strategy,
		Shape:        out.Shape,
		Transposed:   out.Transposed,
		AdjustedRows: out.AdjustedRows,
		Table:        out.Table,
	})
	if err != nil {
		p.log.Warn("encoding extraction for cache", zap.String("message_id", out.MessageID), zap.Error(err))
		return
	}
	if err := p.cache.Set(ctx, cacheKeyPrefix+out.MessageID, data, p.cacheTTL); err != nil {
		p.log.Warn("extraction cache write failed", zap.String("message_id", out.MessageID), zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, msg extraction.RawMessage, out Extraction) {
	if p.publisher == nil {
		return
	}
	evt := events.NewExtractionCompleted(msg.ID)
	evt.ConversationID = msg.ConversationID
	evt.Shape = out.Shape
	evt.Strategy = string(out.Strategy)
	evt.Recovered = out.Recovered
	evt.Columns = len(out.Table.Headers)
	evt.Rows = len(out.Table.Rows)
	evt.EntityType = out.Classification.EntityType
	evt.Confidence = out.Classification.Confidence

	if err := p.publisher.Publish(ctx, evt); err != nil {
		p.log.Warn("publishing extraction event failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}
