// Package consolidate implements the Consolidation Engine (C7): clustering
// of old, low-access memories into centroid-based summaries, linked back to
// their originals via CONSOLIDATED_INTO edges.
package consolidate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuzu-memory/kuzu-memory-go/internal/backup"
	"github.com/kuzu-memory/kuzu-memory-go/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

const (
	eligibleMinAgeDays    = 90
	eligibleMaxAccessCount = 3
	similarityThreshold    = 0.70
	uniquenessThreshold    = 0.30
	batchSize              = 100
)

var eligibleTypes = []types.MemoryType{
	types.MemoryTypeEpisodic,
	types.MemoryTypeSensory,
	types.MemoryTypeWorking,
}

// Cluster is one centroid and the members folded into it.
type Cluster struct {
	Centroid      *types.Memory
	Members       []*types.Memory
	AvgSimilarity float64
	Summary       string
}

// Options configures a Run invocation.
type Options struct {
	DryRun        bool
	SnapshotFirst bool
	BackupDir     string
	DBPath        string
}

// Result reports the outcome of a consolidation run.
type Result struct {
	Clusters        []Cluster
	SummariesCreated int
	OriginalsArchived int
	ExecutionTimeMS  float64
	BackupPath       string
}

// Engine runs eligibility selection, clustering, and summary synthesis.
type Engine struct {
	store storage.MemoryStore
}

// New creates a consolidation Engine.
func New(store storage.MemoryStore) *Engine {
	return &Engine{store: store}
}

// Run selects eligible candidates, clusters them by similarity, and (unless
// DryRun) writes summary memories plus CONSOLIDATED_INTO edges and archives
// the originals.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	now := time.Now().UTC()

	candidates, err := e.store.ListEligible(ctx, storage.EligibilityFilter{
		MemoryTypes:        eligibleTypes,
		MaxAccessCount:     eligibleMaxAccessCount,
		MinAgeDays:         eligibleMinAgeDays,
		AsOf:               now,
		ExcludeSourceTypes: []string{"consolidation"},
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate: listing candidates: %w", err)
	}

	// Sort by access_count descending so higher-quality memories become
	// cluster centroids.
	sortByAccessCountDesc(candidates)

	clustered := make(map[string]bool)
	var clusters []Cluster

	for _, c := range candidates {
		if clustered[c.ID] {
			continue
		}
		var remaining []*types.Memory
		for _, other := range candidates {
			if other.ID == c.ID || clustered[other.ID] {
				continue
			}
			remaining = append(remaining, other)
		}

		var members []*types.Memory
		var simSum float64
		for _, other := range remaining {
			sim := dedup.Similarity(c.Content, other.Content)
			if sim >= similarityThreshold {
				members = append(members, other)
				simSum += sim
			}
		}

		if len(members) == 0 {
			continue
		}

		clustered[c.ID] = true
		for _, m := range members {
			clustered[m.ID] = true
		}

		clusters = append(clusters, Cluster{
			Centroid:      c,
			Members:       members,
			AvgSimilarity: simSum / float64(len(members)),
			Summary:       synthesizeSummary(c, members),
		})
	}

	result := &Result{Clusters: clusters}

	if opts.DryRun {
		result.ExecutionTimeMS = msSince(start)
		return result, nil
	}

	if opts.SnapshotFirst && opts.DBPath != "" && opts.BackupDir != "" {
		path, err := backup.SnapshotBeforeMaintenance(opts.DBPath, opts.BackupDir, "consolidate")
		if err != nil {
			return nil, fmt.Errorf("consolidate: snapshot: %w", err)
		}
		result.BackupPath = path
	}

	for batchStart := 0; batchStart < len(clusters); batchStart += batchSize {
		end := batchStart + batchSize
		if end > len(clusters) {
			end = len(clusters)
		}
		for _, cl := range clusters[batchStart:end] {
			if err := e.materialize(ctx, cl, now); err != nil {
				return nil, err
			}
			result.SummariesCreated++
			result.OriginalsArchived += len(cl.Members) + 1
		}
	}

	result.ExecutionTimeMS = msSince(start)
	return result, nil
}

// materialize writes the summary memory, its CONSOLIDATED_INTO edges, and
// archives the originals (centroid plus members) in the flow C6 uses.
func (e *Engine) materialize(ctx context.Context, cl Cluster, now time.Time) error {
	importance := cl.Centroid.Importance
	for _, m := range cl.Members {
		if m.Importance > importance {
			importance = m.Importance
		}
	}

	summary := &types.Memory{
		ID:         uuid.NewString(),
		Content:    cl.Summary,
		MemoryType: dominantMemoryType(cl),
		Importance: importance,
		Confidence: cl.AvgSimilarity,
		SourceType: "consolidation",
		CreatedAt:  now,
		ValidFrom:  now,
		ClusterID:  cl.Centroid.ID,
	}
	if err := e.store.Store(ctx, summary); err != nil {
		return fmt.Errorf("consolidate: store summary: %w", err)
	}

	originals := append([]*types.Memory{cl.Centroid}, cl.Members...)
	archives := make([]types.ArchivedMemory, 0, len(originals))
	for _, orig := range originals {
		if err := e.store.StoreConsolidationEdge(ctx, types.ConsolidationEdge{
			FromMemoryID:      orig.ID,
			ToMemoryID:        summary.ID,
			ConsolidationDate: now.Format(time.RFC3339),
			ClusterID:         cl.Centroid.ID,
			SimilarityScore:   cl.AvgSimilarity,
		}); err != nil {
			return fmt.Errorf("consolidate: edge for %s: %w", orig.ID, err)
		}
		archives = append(archives, types.ArchivedMemory{
			Memory:        *orig,
			OriginalID:    orig.ID,
			ArchivedAt:    now,
			ExpiresAt:     types.DefaultArchiveExpiry(now),
			PruneReason:   "consolidated into " + summary.ID,
			ArchiveReason: types.ArchiveReasonConsolidated,
		})
		archives[len(archives)-1].ID = uuid.NewString()
		archives[len(archives)-1].ClusterID = cl.Centroid.ID
	}

	if err := e.store.ArchiveAndDelete(ctx, archives); err != nil {
		return fmt.Errorf("consolidate: archive originals: %w", err)
	}
	return nil
}

// dominantMemoryType returns whichever memory_type occurs most often across
// the cluster's centroid and members, ties broken toward EPISODIC, and
// otherwise toward whichever type was seen first (centroid, then members in
// order) for deterministic output.
func dominantMemoryType(cl Cluster) types.MemoryType {
	order := []types.MemoryType{cl.Centroid.MemoryType}
	counts := map[types.MemoryType]int{cl.Centroid.MemoryType: 1}
	for _, m := range cl.Members {
		if counts[m.MemoryType] == 0 {
			order = append(order, m.MemoryType)
		}
		counts[m.MemoryType]++
	}

	bestCount := 0
	best := cl.Centroid.MemoryType
	for _, t := range order {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	if counts[types.MemoryTypeEpisodic] == bestCount {
		best = types.MemoryTypeEpisodic
	}
	return best
}

// synthesizeSummary starts from the centroid's content and appends a
// "Related: ..." fragment for each member whose token set is more than 30%
// novel relative to the centroid.
func synthesizeSummary(centroid *types.Memory, members []*types.Memory) string {
	var b strings.Builder
	b.WriteString(centroid.Content)

	centroidTokens := tokenSet(centroid.Content)
	for _, m := range members {
		memberTokens := tokenSet(m.Content)
		novel := 0
		for t := range memberTokens {
			if _, ok := centroidTokens[t]; !ok {
				novel++
			}
		}
		if len(memberTokens) == 0 {
			continue
		}
		if float64(novel)/float64(len(memberTokens)) > uniquenessThreshold {
			b.WriteString(" Related: ")
			b.WriteString(m.Content)
		}
	}
	return b.String()
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func sortByAccessCountDesc(memories []*types.Memory) {
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].AccessCount > memories[j].AccessCount
	})
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
