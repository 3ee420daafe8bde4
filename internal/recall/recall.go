// Package recall implements the Recall Coordinator (C4), the hot path:
// strategy dispatch (keyword/entity/temporal/auto), temporal-decay ranking,
// and the MemoryContext assembly the public surface returns.
package recall

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuzu-memory/kuzu-memory-go/internal/extract"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/internal/tracker"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// recentBoostFactor multiplies the score of memories created under 24h ago.
const recentBoostFactor = 1.2

// Strategy selects which retrieval strategy Recall runs.
type Strategy = types.RecallStrategy

// Filters narrows the candidate pool before ranking.
type Filters struct {
	AgentID             string
	UserID              string
	SessionID           string
	ProjectLastActivity *time.Time
}

// Options configures one Recall call.
type Options struct {
	MaxMemories      int
	Strategy         Strategy
	Filters          Filters
	StrictMonitoring bool
	BudgetMS         float64

	// BaseWeight multiplies every candidate's decay score in rank, per
	// step 4 of the temporal-decay formula. Zero is treated as 1.0 (no
	// scaling) so callers that don't set it get the historical behavior.
	BaseWeight float64
}

// MemoryContext is the hot path's output: the original prompt, an enhanced
// version prefixed with a numbered memory summary, and the memories used.
type MemoryContext struct {
	OriginalPrompt string
	EnhancedPrompt string
	Memories       []*types.Memory
	Confidence     float64
	StrategyUsed   Strategy
	RecallTimeMS   float64
}

// Coordinator runs recall strategies against a store and ranks the union.
type Coordinator struct {
	store     storage.MemoryStore
	search    storage.SearchProvider
	extractor *extract.Extractor
	tracker   *tracker.Tracker
	limiter   *rate.Limiter
}

// New creates a Coordinator. search may be nil, in which case the keyword
// strategy falls back to an in-memory scan over ListEligible.
func New(store storage.MemoryStore, search storage.SearchProvider, trk *tracker.Tracker) *Coordinator {
	return &Coordinator{
		store:     store,
		search:    search,
		extractor: extract.New(),
		tracker:   trk,
		// limiter is constructed here but no Coordinator method consults
		// it; budget accounting is the per-call elapsed-time check in Recall.
		limiter: rate.NewLimiter(rate.Limit(1000), 1),
	}
}

// Recall runs the requested strategy (or auto) and returns the ranked
// MemoryContext. Only if every attempted strategy fails does it return
// types.ErrRecallFailed.
func (c *Coordinator) Recall(ctx context.Context, prompt string, opts Options) (*MemoryContext, error) {
	start := time.Now()
	if opts.MaxMemories <= 0 {
		opts.MaxMemories = 10
	}
	if opts.Strategy == "" {
		opts.Strategy = types.RecallStrategyAuto
	}

	type strategyResult struct {
		memories []*types.Memory
		err      error
	}

	run := func(s Strategy) strategyResult {
		memories, err := c.runStrategy(ctx, s, prompt, opts.Filters)
		return strategyResult{memories, err}
	}

	var candidates []*types.Memory
	var lastErr error
	succeeded := false

	switch opts.Strategy {
	case types.RecallStrategyAuto:
		strategies := []Strategy{types.RecallStrategyKeyword, types.RecallStrategyEntity}
		if timeReferenceRe.MatchString(prompt) {
			strategies = append(strategies, types.RecallStrategyTemporal)
		}
		var wg sync.WaitGroup
		results := make([]strategyResult, len(strategies))
		for i, s := range strategies {
			wg.Add(1)
			go func(i int, s Strategy) {
				defer wg.Done()
				results[i] = run(s)
			}(i, s)
		}
		wg.Wait()
		seen := make(map[string]bool)
		for _, r := range results {
			if r.err != nil {
				lastErr = r.err
				continue
			}
			succeeded = true
			for _, m := range r.memories {
				if !seen[m.ID] {
					seen[m.ID] = true
					candidates = append(candidates, m)
				}
			}
		}
	default:
		r := run(opts.Strategy)
		if r.err != nil {
			lastErr = r.err
		} else {
			succeeded = true
			candidates = r.memories
		}
	}

	if !succeeded {
		return nil, types.NewRecallFailed(lastErr)
	}

	if f := opts.Filters; f.AgentID != "" || f.UserID != "" || f.SessionID != "" {
		kept := make([]*types.Memory, 0, len(candidates))
		for _, m := range candidates {
			if (f.AgentID == "" || m.AgentID == f.AgentID) &&
				(f.UserID == "" || m.UserID == f.UserID) &&
				(f.SessionID == "" || m.SessionID == f.SessionID) {
				kept = append(kept, m)
			}
		}
		candidates = kept
	}

	baseWeight := opts.BaseWeight
	if baseWeight == 0 {
		baseWeight = 1.0
	}
	ranked := rank(candidates, opts.Filters.ProjectLastActivity, baseWeight)
	if len(ranked) > opts.MaxMemories {
		ranked = ranked[:opts.MaxMemories]
	}

	if c.tracker != nil {
		ids := make([]string, len(ranked))
		for i, m := range ranked {
			ids[i] = m.ID
		}
		c.tracker.TrackBatch(ids)
	}

	elapsed := msSince(start)
	result := &MemoryContext{
		OriginalPrompt: prompt,
		EnhancedPrompt: buildEnhancedPrompt(prompt, ranked),
		Memories:       ranked,
		Confidence:     confidenceOf(ranked),
		StrategyUsed:   opts.Strategy,
		RecallTimeMS:   elapsed,
	}

	if opts.BudgetMS > 0 && elapsed > opts.BudgetMS {
		if opts.StrictMonitoring {
			return result, types.NewPerformanceExceeded("recall", elapsed, opts.BudgetMS)
		}
	}

	return result, nil
}

func (c *Coordinator) runStrategy(ctx context.Context, s Strategy, prompt string, f Filters) ([]*types.Memory, error) {
	switch s {
	case types.RecallStrategyKeyword:
		return c.keywordStrategy(ctx, prompt)
	case types.RecallStrategyEntity:
		return c.entityStrategy(ctx, prompt)
	case types.RecallStrategyTemporal:
		return c.temporalStrategy(ctx, prompt, f)
	default:
		return nil, fmt.Errorf("recall: unknown strategy %q", s)
	}
}

func (c *Coordinator) keywordStrategy(ctx context.Context, prompt string) ([]*types.Memory, error) {
	if c.search != nil {
		result, err := c.search.FullTextSearch(ctx, storage.SearchOptions{Query: prompt, Limit: 100, FuzzyFallback: true})
		if err != nil {
			return nil, fmt.Errorf("keyword strategy: %w", err)
		}
		out := make([]*types.Memory, len(result.Items))
		for i := range result.Items {
			out[i] = &result.Items[i]
		}
		return out, nil
	}

	// Fallback: scan every live memory and keep those sharing at least one
	// token with the prompt; ordering is left to rank.
	all, err := c.store.ListEligible(ctx, storage.EligibilityFilter{MaxAccessCount: -1, AsOf: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("keyword strategy fallback: %w", err)
	}
	tokens := tokenize(prompt)
	var out []*types.Memory
	for _, m := range all {
		if overlapCount(tokens, tokenize(m.Content)) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Coordinator) entityStrategy(ctx context.Context, prompt string) ([]*types.Memory, error) {
	candidates, err := c.extractor.Extract(prompt)
	if err != nil {
		return nil, fmt.Errorf("entity strategy: %w", err)
	}
	entitySet := make(map[string]bool)
	for _, cand := range candidates {
		for _, e := range cand.Entities {
			entitySet[e.Name] = true
		}
	}
	if len(entitySet) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(entitySet))
	for name := range entitySet {
		ids = append(ids, name)
	}
	memories, err := c.store.MemoriesMentioningEntities(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("entity strategy: %w", err)
	}
	return memories, nil
}

var timeReferenceRe = regexp.MustCompile(`(?i)\b(yesterday|last week|last month|today|this week|this month)\b`)

func (c *Coordinator) temporalStrategy(ctx context.Context, prompt string, f Filters) ([]*types.Memory, error) {
	window := 7 * 24 * time.Hour
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "yesterday") || strings.Contains(lower, "today"):
		window = 24 * time.Hour
	case strings.Contains(lower, "last month") || strings.Contains(lower, "this month"):
		window = 30 * 24 * time.Hour
	}

	reference := time.Now().UTC()
	if f.ProjectLastActivity != nil {
		reference = *f.ProjectLastActivity
	}
	cutoff := reference.Add(-window)

	all, err := c.store.ListEligible(ctx, storage.EligibilityFilter{MaxAccessCount: -1, AsOf: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("temporal strategy: %w", err)
	}
	var out []*types.Memory
	for _, m := range all {
		if m.CreatedAt.After(cutoff) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// rank applies the temporal-decay formula with activity-aware recency, a
// recent-boost multiplier, and a flat base_weight multiplier, then sorts
// descending.
func rank(candidates []*types.Memory, projectLastActivity *time.Time, baseWeight float64) []*types.Memory {
	now := time.Now().UTC()
	type scored struct {
		m     *types.Memory
		score float64
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		reference := now
		if projectLastActivity != nil && m.CreatedAt.Before(*projectLastActivity) {
			reference = *projectLastActivity
		}
		ageDays := m.AgeDays(reference)

		retention := types.RetentionDefaults[m.MemoryType]
		halfLifeDays := retention.HalfLife.Hours() / 24
		score := math.Pow(2, -ageDays/halfLifeDays)
		if score < retention.MinScore {
			score = retention.MinScore
		}

		if now.Sub(m.CreatedAt) < 24*time.Hour {
			score *= recentBoostFactor
		}
		score *= baseWeight

		scoredList = append(scoredList, scored{m: m, score: score})
	}

	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	out := make([]*types.Memory, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.m
	}
	return out
}

func buildEnhancedPrompt(prompt string, memories []*types.Memory) string {
	if len(memories) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for i, m := range memories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}

func confidenceOf(memories []*types.Memory) float64 {
	if len(memories) == 0 {
		return 0
	}
	var sum float64
	for _, m := range memories {
		sum += m.Confidence
	}
	return sum / float64(len(memories))
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		out[w] = true
	}
	return out
}

func overlapCount(a, b map[string]bool) int {
	n := 0
	for w := range a {
		if b[w] {
			n++
		}
	}
	return n
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
