// Package enrich links findings that likely share a root cause.
//
// Pairs of findings whose vulnerabilities share a vector are put to the
// model as a YES/NO question; a reply containing "yes" creates a
// RELATED_TO relationship carrying the reply as its reason.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/secmesh/core"
	"github.com/hupe1980/secmesh/internal/telemetry"
	"github.com/hupe1980/secmesh/internal/util"
	"github.com/hupe1980/secmesh/logging"
	"github.com/hupe1980/secmesh/model"
	"github.com/hupe1980/secmesh/store"
)

// DefaultLimit is the number of candidate pairs examined per run.
const DefaultLimit = 5

// PairQuery selects candidate pairs.
const PairQuery = `MATCH (f1:Finding)-[:HAS_VULNERABILITY]->(v1:Vulnerability),
      (f2:Finding)-[:HAS_VULNERABILITY]->(v2:Vulnerability)
WHERE f1.id < f2.id AND v1.vector = v2.vector
RETURN f1.id AS id1, f2.id AS id2, v1.vector AS vector
LIMIT $limit`

// LinkQuery creates the relationship of a confirmed pair.
const LinkQuery = `MATCH (f1:Finding {id: $id1}), (f2:Finding {id: $id2})
MERGE (f1)-[:RELATED_TO {reason: $reason}]->(f2)`

// PromptTemplate is rendered per pair with id1, id2 and vector.
const PromptTemplate = `Given two findings:
- {{.id1}}
- {{.id2}}
Both have a vulnerability vector of '{{.vector}}'. Do they likely share a root cause or attack pattern? Respond with either:

YES - with a reason
NO - and why not`

// Options configures New.
type Options struct {
	// Limit caps the candidate pairs (default DefaultLimit).
	Limit int
	// Backoff is the pause after a failed pair (default one second).
	Backoff time.Duration
	Logger  logging.Logger
}

// Enricher runs graph enrichment.
type Enricher struct {
	llm     model.Model
	store   store.Store
	limit   int
	backoff time.Duration
	logger  logging.Logger
}

// New creates an Enricher.
func New(llm model.Model, s store.Store, optFns ...func(o *Options)) *Enricher {
	opts := Options{
		Limit:   DefaultLimit,
		Backoff: time.Second,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	return &Enricher{
		llm:     llm,
		store:   s,
		limit:   opts.Limit,
		backoff: opts.Backoff,
		logger:  logging.OrNoOp(opts.Logger),
	}
}

// Pair is the outcome for one candidate pair.
type Pair struct {
	ID1    string `json:"id1"`
	ID2    string `json:"id2"`
	Vector string `json:"vector"`
	Linked bool   `json:"linked"`
	Reply  string `json:"reply,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes one enrichment run.
type Report struct {
	Pairs  []Pair `json:"pairs"`
	Linked int    `json:"linked"`
	Failed int    `json:"failed"`
}

// Run examines the candidate pairs. Failures of single pairs are recorded
// in the report; only failing to fetch the candidates is an error.
func (e *Enricher) Run(ctx context.Context) (*Report, error) {
	if e.store == nil {
		return nil, store.ErrNoStore
	}

	ctx, span := telemetry.StartSpan(ctx, "enrich.run", telemetry.Int("limit", e.limit))

	pairs, err := e.candidates(ctx)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}

	report := &Report{Pairs: make([]Pair, 0, len(pairs))}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			telemetry.End(span, err)
			return report, err
		}

		res, err := e.judge(ctx, p)
		if err != nil {
			res.Error = err.Error()
			report.Failed++
			e.logger.Error("enrich.pair.failed", "id1", res.ID1, "id2", res.ID2, "error", err.Error())
			e.pause(ctx)
		} else if res.Linked {
			report.Linked++
			e.logger.Info("enrich.pair.linked", "id1", res.ID1, "id2", res.ID2)
		} else {
			e.logger.Info("enrich.pair.skipped", "id1", res.ID1, "id2", res.ID2)
		}

		report.Pairs = append(report.Pairs, res)
	}

	span.SetAttributes(telemetry.Int("pairs", len(report.Pairs)), telemetry.Int("linked", report.Linked))
	telemetry.End(span, nil)

	e.logger.Info("enrich.completed", "pairs", len(report.Pairs), "linked", report.Linked, "failed", report.Failed)

	return report, nil
}

func (e *Enricher) candidates(ctx context.Context) ([]Pair, error) {
	sess, err := e.store.Session(ctx, store.AccessRead)
	if err != nil {
		return nil, fmt.Errorf("open read session: %w", err)
	}
	defer func() { _ = sess.Close(ctx) }()

	rows, err := sess.Run(ctx, PairQuery, map[string]any{"limit": int64(e.limit)})
	if err != nil {
		return nil, fmt.Errorf("query candidate pairs: %w", err)
	}

	pairs := make([]Pair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, Pair{
			ID1:    field(r, "id1"),
			ID2:    field(r, "id2"),
			Vector: field(r, "vector"),
		})
	}

	return pairs, nil
}

func (e *Enricher) judge(ctx context.Context, p Pair) (Pair, error) {
	prompt, err := Prompt(p.ID1, p.ID2, p.Vector)
	if err != nil {
		return p, err
	}

	reply, err := e.llm.Generate(ctx, model.Request{Messages: []core.Message{core.NewHumanMessage(prompt)}})
	if err != nil {
		return p, err
	}

	p.Reply = strings.TrimSpace(reply.Content)
	if !Confirms(p.Reply) {
		return p, nil
	}

	if err := e.link(ctx, p); err != nil {
		return p, err
	}
	p.Linked = true

	return p, nil
}

func (e *Enricher) link(ctx context.Context, p Pair) error {
	sess, err := e.store.Session(ctx, store.AccessWrite)
	if err != nil {
		return fmt.Errorf("open write session: %w", err)
	}
	defer func() { _ = sess.Close(ctx) }()

	_, err = sess.Run(ctx, LinkQuery, map[string]any{"id1": p.ID1, "id2": p.ID2, "reason": p.Reply})
	if err != nil {
		return fmt.Errorf("link findings: %w", err)
	}

	return nil
}

func (e *Enricher) pause(ctx context.Context) {
	if e.backoff <= 0 {
		return
	}

	t := time.NewTimer(e.backoff)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Prompt renders PromptTemplate for one pair.
func Prompt(id1, id2, vector string) (string, error) {
	out, err := util.RenderTemplate(PromptTemplate, map[string]any{"id1": id1, "id2": id2, "vector": vector})
	if err != nil {
		return "", fmt.Errorf("render enrichment prompt: %w", err)
	}
	return out, nil
}

// Confirms reports whether a model reply affirms the pair.
func Confirms(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "yes")
}

func field(r store.Record, key string) string {
	v, _ := r.Get(key)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
