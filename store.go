// Package kuzumemory is an embedded, graph-backed memory store for AI
// coding assistants: persistent, project-scoped memory of facts,
// decisions, preferences, and interaction history, recalled in under ten
// milliseconds to enhance a prompt.
package kuzumemory

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuzu-memory/kuzu-memory-go/internal/attribution"
	"github.com/kuzu-memory/kuzu-memory-go/internal/backup"
	"github.com/kuzu-memory/kuzu-memory-go/internal/config"
	"github.com/kuzu-memory/kuzu-memory-go/internal/consolidate"
	"github.com/kuzu-memory/kuzu-memory-go/internal/dedup"
	"github.com/kuzu-memory/kuzu-memory-go/internal/extract"
	"github.com/kuzu-memory/kuzu-memory-go/internal/graph"
	"github.com/kuzu-memory/kuzu-memory-go/internal/prune"
	"github.com/kuzu-memory/kuzu-memory-go/internal/recall"
	"github.com/kuzu-memory/kuzu-memory-go/internal/storage"
	"github.com/kuzu-memory/kuzu-memory-go/internal/tracker"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// Store is the top-level handle wiring the graph adapter (C1), memory store
// (C2), extractor (C3), recall coordinator (C4), access tracker (C5), smart
// pruner (C6), consolidation engine (C7), and deduplication engine (C8)
// behind the public surface in this package.
type Store struct {
	graph     *graph.Adapter
	dedup     *dedup.Engine
	extractor *extract.Extractor
	recaller  *recall.Coordinator
	pruner    *prune.Pruner
	consolid  *consolidate.Engine
	tracker   trackerHandle
	backupSvc *backup.BackupService
	cfg       types.Config
	dbPath    string
	backupDir string
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// trackerHandle is the subset of *tracker.Tracker the Store needs, kept as
// an interface so Open can wire a no-op tracker when analytics are disabled.
type trackerHandle interface {
	Start(ctx context.Context)
	Stop()
	TrackBatch(memoryIDs []string)
}

type noopTracker struct{}

func (noopTracker) Start(ctx context.Context)     {}
func (noopTracker) Stop()                         {}
func (noopTracker) TrackBatch(memoryIDs []string) {}

// Open creates or opens the database at dsn, runs schema setup, and starts
// the access tracker's background worker. The returned Store owns the pool
// and worker: callers must call Close when finished.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.config
	if o.yamlPath != "" {
		loaded, err := config.Load(o.yamlPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	adapter, err := graph.Open(dsn, o.poolConfig)
	if err != nil {
		return nil, fmt.Errorf("kuzumemory: open: %w", err)
	}

	if o.migrationsDir != "" {
		if err := adapter.Store().RunMigrations(o.migrationsDir); err != nil {
			return nil, fmt.Errorf("kuzumemory: open: %w", err)
		}
	}

	if dbCfg, err := config.LoadFromDB(adapter.Store().DB(), cfg); err == nil {
		cfg = dbCfg
	}

	s := &Store{
		graph:     adapter,
		dedup:     dedup.New(dedup.Thresholds{Near: cfg.Dedup.NearThreshold, Semantic: cfg.Dedup.SemanticThreshold}),
		extractor: extract.New(),
		pruner:    prune.New(adapter.Store()),
		consolid:  consolidate.New(adapter.Store()),
		cfg:       cfg,
		dbPath:    o.dbPath,
		backupDir: o.backupDir,
		logger:    o.logger,
	}

	var search storage.SearchProvider = adapter.Store()

	if cfg.Analytics.TrackerEnabled {
		t := tracker.New(adapter.Store(), tracker.Config{
			BatchInterval: cfg.Analytics.BatchInterval,
			BatchSize:     cfg.Analytics.BatchSize,
		}, o.logger)
		t.Start(ctx)
		s.tracker = t
	} else {
		s.tracker = noopTracker{}
	}

	s.recaller = recall.New(adapter.Store(), search, trackerOrNil(s.tracker))

	if cfg.Retention.ScheduledBackupEnabled && o.dbPath != "" && o.backupDir != "" {
		svc, err := backup.NewBackupService(backup.BackupConfig{
			DBPath:        o.dbPath,
			BackupDir:     o.backupDir,
			Interval:      cfg.Retention.ScheduledBackupInterval,
			VerifyBackups: true,
			Retention: backup.RetentionPolicy{
				Hourly:  cfg.Retention.BackupRetentionHourly,
				Daily:   cfg.Retention.BackupRetentionDaily,
				Weekly:  cfg.Retention.BackupRetentionWeekly,
				Monthly: cfg.Retention.BackupRetentionMonthly,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("kuzumemory: backup service: %w", err)
		}
		s.backupSvc = svc
		go func() {
			if err := svc.Start(context.Background()); err != nil && o.logger != nil {
				o.logger.Warn("kuzumemory: backup service stopped", "error", err)
			}
		}()
	}

	return s, nil
}

// trackerOrNil narrows trackerHandle back to *tracker.Tracker for
// recall.New, which accepts nil to mean "no access tracking configured".
func trackerOrNil(h trackerHandle) *tracker.Tracker {
	if t, ok := h.(*tracker.Tracker); ok {
		return t
	}
	return nil
}

// Close drains the access tracker and releases the pool's database handle.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tracker.Stop()
	if s.backupSvc != nil {
		if err := s.backupSvc.Stop(); err != nil {
			s.logger.Warn("kuzumemory: stopping backup service", "error", err)
		}
	}
	return s.graph.Close()
}

// BackupHealth reports the scheduled backup loop's health, or an error if
// scheduled backups are not enabled for this Store (see
// types.RetentionConfig.ScheduledBackupEnabled and WithMaintenancePaths).
func (s *Store) BackupHealth() (*backup.HealthStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backupSvc == nil {
		return nil, fmt.Errorf("kuzumemory: scheduled backups are not enabled")
	}
	return s.backupSvc.HealthCheck()
}

// Remember synchronously stores a single memory and returns its id, the
// existing id if an exact or policy-matched duplicate was found.
func (s *Store) Remember(ctx context.Context, content, source, agentID string, sessionID, userID string, metadata map[string]any) (string, error) {
	var ids []string
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.writeCandidates(ctx, []candidate{{
			text:       content,
			memoryType: types.MemoryTypeSemantic,
			importance: 0.5,
			confidence: 1.0,
		}}, source, agentID, sessionID, userID, metadata, types.DedupPolicySkip)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("kuzumemory: remember produced no id")
	}
	return ids[0], nil
}

// GenerateMemories runs the extractor (C3) over content, deduplicates each
// candidate against live memories of the same type (C8), and persists the
// survivors per policy. Returns the ids of every memory now live as a
// result of this call (new or matched, depending on policy).
func (s *Store) GenerateMemories(ctx context.Context, content string, source, agentID string, sessionID, userID string, metadata map[string]any, policy types.DedupPolicy) ([]string, error) {
	start := time.Now()
	candidates, err := s.extractor.Extract(content)
	if err != nil {
		return nil, types.NewExtractionFailed(err)
	}

	cs := make([]candidate, len(candidates))
	for i, c := range candidates {
		cs[i] = candidate{
			text:       c.Text,
			memoryType: c.MemoryType,
			importance: c.Importance,
			confidence: c.Confidence,
			keywords:   c.Keywords,
			entities:   c.Entities,
			origin:     string(c.MemoryType),
		}
	}

	var ids []string
	err = s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.writeCandidates(ctx, cs, source, agentID, sessionID, userID, metadata, policy)
		return err
	})
	if err != nil {
		return nil, err
	}

	elapsed := msSince(start)
	if elapsed > s.cfg.Performance.MaxGenerationTimeMS {
		s.logger.Warn("generate_memories exceeded budget", "elapsed_ms", elapsed, "budget_ms", s.cfg.Performance.MaxGenerationTimeMS)
		if s.cfg.Performance.StrictMonitoring {
			return ids, types.NewPerformanceExceeded("generate", elapsed, s.cfg.Performance.MaxGenerationTimeMS)
		}
	}
	return ids, nil
}

type candidate struct {
	text       string
	memoryType types.MemoryType
	importance float64
	confidence float64
	keywords   []string
	entities   []extract.ExtractedEntity
	origin     string
}

// writeCandidates implements the write path shared by Remember and
// GenerateMemories: exact-hash short-circuit, then C8 near/semantic check,
// then policy-governed persistence.
func (s *Store) writeCandidates(ctx context.Context, candidates []candidate, source, agentID, sessionID, userID string, metadata map[string]any, policy types.DedupPolicy) ([]string, error) {
	store := s.graph.Store()
	now := time.Now().UTC()
	if agentID == "" {
		agentID = attribution.DetectAgent()
	}

	var ids []string
	for _, c := range candidates {
		hash := contentHash(c.text)

		if existing, err := store.GetByContentHash(ctx, hash, c.memoryType); err == nil {
			ids = append(ids, existing.ID)
			continue
		} else if err != storage.ErrNotFound {
			return ids, fmt.Errorf("kuzumemory: exact-hash check: %w", err)
		}

		live, err := store.ListEligible(ctx, storage.EligibilityFilter{
			MemoryTypes:    []types.MemoryType{c.memoryType},
			MaxAccessCount: -1,
			AsOf:           now,
		})
		if err != nil {
			return ids, fmt.Errorf("kuzumemory: listing candidates for dedup: %w", err)
		}

		matches := s.dedup.FindMatches(c.text, hash, live)
		if len(matches) > 0 && matches[0].Score >= s.cfg.Dedup.NearThreshold {
			switch policy {
			case types.DedupPolicySkip:
				ids = append(ids, matches[0].Memory.ID)
				continue
			case types.DedupPolicyUpdate:
				existing := matches[0].Memory
				existing.Metadata = metadata
				existing.AccessedAt = &now
				if err := store.Update(ctx, existing); err != nil {
					return ids, fmt.Errorf("kuzumemory: updating duplicate: %w", err)
				}
				ids = append(ids, existing.ID)
				continue
			case types.DedupPolicyMerge:
				// Fall through: store the candidate, then link it below.
			}
		}

		mem := &types.Memory{
			ID:         generateMemoryID(agentID),
			Content:    c.text,
			MemoryType: c.memoryType,
			Importance: c.importance,
			Confidence: c.confidence,
			SourceType: source,
			CreatedAt:  now,
			ValidFrom:  now,
			AgentID:    agentID,
			SessionID:  sessionID,
			UserID:     userID,
			Metadata:   metadata,
			OriginHint: c.origin,
		}
		if err := store.Store(ctx, mem); err != nil {
			return ids, fmt.Errorf("kuzumemory: storing memory: %w", err)
		}

		if len(matches) > 0 && matches[0].Score >= s.cfg.Dedup.NearThreshold && policy == types.DedupPolicyMerge {
			if err := store.StoreConsolidationEdge(ctx, types.ConsolidationEdge{
				FromMemoryID:      matches[0].Memory.ID,
				ToMemoryID:        mem.ID,
				ConsolidationDate: now.Format(time.RFC3339),
				SimilarityScore:   matches[0].Score,
			}); err != nil {
				return ids, fmt.Errorf("kuzumemory: linking merged duplicate: %w", err)
			}
		}

		if mentions := mentionsFor(mem.ID, c.entities); len(mentions) > 0 {
			if err := store.StoreMentions(ctx, mem.ID, mentions); err != nil {
				return ids, fmt.Errorf("kuzumemory: storing mentions: %w", err)
			}
		}

		ids = append(ids, mem.ID)
	}
	return ids, nil
}

func mentionsFor(memoryID string, entities []extract.ExtractedEntity) []types.MentionEdge {
	out := make([]types.MentionEdge, len(entities))
	for i, e := range entities {
		out[i] = types.MentionEdge{MemoryID: memoryID, EntityID: e.Name, Position: e.Position}
	}
	return out
}

// AttachMemories is the read entry point: selects a recall strategy, ranks
// candidates by temporal decay, and returns a MemoryContext with an
// enhanced prompt.
func (s *Store) AttachMemories(ctx context.Context, prompt string, maxMemories int, strategy types.RecallStrategy, agentID, sessionID, userID string) (*recall.MemoryContext, error) {
	var out *recall.MemoryContext
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.recaller.Recall(ctx, prompt, recall.Options{
			MaxMemories:      maxMemories,
			Strategy:         strategy,
			StrictMonitoring: s.cfg.Performance.StrictMonitoring,
			BudgetMS:         s.cfg.Performance.MaxRecallTimeMS,
			BaseWeight:       s.cfg.Recall.BaseWeight,
			Filters: recall.Filters{
				AgentID:   agentID,
				SessionID: sessionID,
				UserID:    userID,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	budget := s.cfg.Performance.MaxRecallTimeMS
	if !s.cfg.Performance.StrictMonitoring && budget > 0 && out.RecallTimeMS > budget {
		s.logger.Warn("attach_memories exceeded budget", "elapsed_ms", out.RecallTimeMS, "budget_ms", budget)
	}
	return out, nil
}

// GetRecentMemories returns the most recently created memories, applying
// the filters in opts. Memories whose valid_to has passed are not excluded.
func (s *Store) GetRecentMemories(ctx context.Context, limit int, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Limit = limit
	opts.SortBy = "created_at"
	opts.SortOrder = "desc"

	var out *storage.PaginatedResult[types.Memory]
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.graph.Store().List(ctx, opts)
		return err
	})
	return out, err
}

// GetMemoryByID retrieves a single memory by id.
func (s *Store) GetMemoryByID(ctx context.Context, id string) (*types.Memory, error) {
	var out *types.Memory
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.graph.Store().Get(ctx, id)
		return err
	})
	return out, err
}

// CleanupExpiredMemories deletes every memory whose valid_to has passed and
// returns the count removed.
func (s *Store) CleanupExpiredMemories(ctx context.Context) (int, error) {
	var n int
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.graph.Store().DeleteExpired(ctx, time.Now().UTC())
		return err
	})
	return n, err
}

// SmartPrune runs the smart pruner (C6) over the live corpus.
func (s *Store) SmartPrune(ctx context.Context, opts prune.Options) (*prune.Result, error) {
	if opts.DBPath == "" {
		opts.DBPath = s.dbPath
	}
	if opts.BackupDir == "" {
		opts.BackupDir = s.backupDir
	}
	var out *prune.Result
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.pruner.Run(ctx, opts)
		return err
	})
	return out, err
}

// Consolidate runs the consolidation engine (C7) over eligible memories.
func (s *Store) Consolidate(ctx context.Context, opts consolidate.Options) (*consolidate.Result, error) {
	if opts.DBPath == "" {
		opts.DBPath = s.dbPath
	}
	if opts.BackupDir == "" {
		opts.BackupDir = s.backupDir
	}
	var out *consolidate.Result
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.consolid.Run(ctx, opts)
		return err
	})
	return out, err
}

// RestoreArchive reinstates an archived memory as live, within its recovery
// window. Returns types.ErrArchiveNotFound once the window has passed.
func (s *Store) RestoreArchive(ctx context.Context, archiveID string) (*types.Memory, error) {
	var out *types.Memory
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.graph.Store().RestoreArchive(ctx, archiveID)
		return err
	})
	return out, err
}

// PurgeExpiredArchives deletes archive rows whose recovery window has
// passed and returns the count removed.
func (s *Store) PurgeExpiredArchives(ctx context.Context) (int, error) {
	var n int
	err := s.graph.Acquire(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.graph.Store().PurgeExpiredArchives(ctx, time.Now().UTC())
		return err
	})
	return n, err
}

// generateMemoryID builds a memory ID of the form mem:<scope>:<uuid>, scoped
// to the owning agent so IDs remain sortable/greppable by origin even though
// the suffix itself carries no ordering guarantee.
func generateMemoryID(scope string) string {
	if scope == "" {
		scope = "default"
	}
	scope = strings.ReplaceAll(strings.TrimSpace(scope), ":", "-")
	return fmt.Sprintf("mem:%s:%s", scope, uuid.NewString())
}

func contentHash(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
