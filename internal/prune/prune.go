// Package prune implements the Smart Pruner (C6): a four-factor weighted
// retention score, protection rules, and an archive-then-delete flow
// batched at 100 rows, following the teacher's multi-factor confidence
// scoring pattern.
package prune

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuzu-memory/kuzu-memory-go/internal/backup"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

const (
	weightAge        = 0.35
	weightSize       = 0.20
	weightAccess     = 0.30
	weightImportance = 0.15

	batchSize = 100

	ageNormalizationDays = 365
	sizeNormalizationLen = 10_000
	accessNormalizationN = 20
	recencyWindowDays    = 90
)

// Strategy selects the threshold and extra filters for a prune run.
type Strategy = types.PruneStrategy

// strategyThresholds maps each strategy to its retention-score cutoff;
// scores below the threshold are candidates for pruning.
var strategyThresholds = map[Strategy]float64{
	types.PruneStrategySafe:        0.15,
	types.PruneStrategyIntelligent: 0.25,
	types.PruneStrategyAggressive:  0.40,
	types.PruneStrategySmart:       0.30,
}

// Options configures a Run invocation.
type Options struct {
	Threshold      float64 // overrides the strategy default when > 0
	Strategy       Strategy
	ArchiveEnabled bool
	DryRun         bool
	SnapshotFirst  bool
	BackupDir      string
	DBPath         string
}

// Result reports the outcome of a prune run.
type Result struct {
	Candidates      int
	Pruned          int
	Archived        int
	Protected       int
	ExecutionTimeMS float64
	BackupPath      string
}

// Pruner runs retention scoring and archive/delete over the live corpus.
type Pruner struct {
	store storage.MemoryStore
}

// New creates a Pruner.
func New(store storage.MemoryStore) *Pruner {
	return &Pruner{store: store}
}

// Run scores every live memory, drops protected ones, and archives-then-
// deletes those scoring below the threshold, 100 rows per transaction.
// In dry-run mode nothing is mutated; Pruned reports how many memories
// would have been pruned, and Archived is left at zero.
func (p *Pruner) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = strategyThresholds[opts.Strategy]
		if threshold <= 0 {
			threshold = 0.30
		}
	}

	candidates, err := p.store.ListEligible(ctx, storage.EligibilityFilter{
		MaxAccessCount: -1,
		AsOf:           time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("prune: listing candidates: %w", err)
	}

	result := &Result{Candidates: len(candidates)}

	var toPrune []*types.Memory
	for _, m := range candidates {
		if isProtected(m) {
			result.Protected++
			continue
		}
		score := retentionScore(m)
		if score < threshold {
			toPrune = append(toPrune, m)
		}
	}

	if opts.DryRun {
		result.Pruned = len(toPrune)
		result.ExecutionTimeMS = msSince(start)
		return result, nil
	}

	if opts.SnapshotFirst && opts.DBPath != "" && opts.BackupDir != "" {
		path, err := backup.SnapshotBeforeMaintenance(opts.DBPath, opts.BackupDir, "smart-prune")
		if err != nil {
			return nil, fmt.Errorf("prune: snapshot: %w", err)
		}
		result.BackupPath = path
	}

	now := time.Now().UTC()
	for i := 0; i < len(toPrune); i += batchSize {
		end := i + batchSize
		if end > len(toPrune) {
			end = len(toPrune)
		}
		batch := toPrune[i:end]

		archives := make([]types.ArchivedMemory, 0, len(batch))
		for _, m := range batch {
			score := retentionScore(m)
			archives = append(archives, types.ArchivedMemory{
				Memory:        *m,
				OriginalID:    m.ID,
				ArchivedAt:    now,
				ExpiresAt:     types.DefaultArchiveExpiry(now),
				PruneScore:    score,
				PruneReason:   "retention score below threshold",
				ArchiveReason: types.ArchiveReasonPruned,
			})
			archives[len(archives)-1].ID = uuid.NewString()
		}

		if opts.ArchiveEnabled {
			if err := p.store.ArchiveAndDelete(ctx, archives); err != nil {
				return nil, fmt.Errorf("prune: archive batch: %w", err)
			}
			result.Archived += len(archives)
		} else {
			for _, m := range batch {
				if err := p.store.Delete(ctx, m.ID); err != nil {
					return nil, fmt.Errorf("prune: delete %s: %w", m.ID, err)
				}
			}
		}
		result.Pruned += len(batch)
	}

	result.ExecutionTimeMS = msSince(start)
	return result, nil
}

// isProtected reports whether m is exempt from pruning regardless of score.
func isProtected(m *types.Memory) bool {
	if m.Importance >= 0.8 {
		return true
	}
	if m.AccessCount >= 10 {
		return true
	}
	if m.AgeDays(time.Now().UTC()) < 30 {
		return true
	}
	if types.ProtectedSourceTypes[m.SourceType] {
		return true
	}
	if m.MemoryType == types.MemoryTypePreference {
		return true
	}
	return false
}

// retentionScore is the weighted sum of the four normalized factors.
func retentionScore(m *types.Memory) float64 {
	now := time.Now().UTC()
	age := ageScore(m.AgeDays(now))
	size := sizeScore(len(m.Content))
	access := accessScore(m, now)
	importance := m.Importance
	if importance == 0 {
		importance = 0.5
	}

	return weightAge*age + weightSize*size + weightAccess*access + weightImportance*importance
}

func ageScore(ageDays float64) float64 {
	score := 1 - ageDays/ageNormalizationDays
	if score < 0 {
		return 0
	}
	return score
}

func sizeScore(contentLen int) float64 {
	score := 1 - float64(contentLen)/sizeNormalizationLen
	if score < 0 {
		return 0
	}
	return score
}

func accessScore(m *types.Memory, now time.Time) float64 {
	freqComponent := float64(m.AccessCount) / accessNormalizationN
	if freqComponent > 1 {
		freqComponent = 1
	}

	recency := 0.0
	if m.AccessedAt != nil {
		daysSinceAccess := now.Sub(*m.AccessedAt).Hours() / 24
		recency = 1 - daysSinceAccess/recencyWindowDays
		if recency < 0 {
			recency = 0
		}
	}

	return 0.6*freqComponent + 0.4*recency
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
