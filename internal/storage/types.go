package storage

import (
	"errors"
	"time"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

var (
	// ErrNotFound indicates that the requested memory was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PaginatedResult represents a paginated result set with type safety using
// generics, kept from the teacher's storage layer unchanged in shape.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListOptions provides pagination and filtering for List.
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string

	AgentID    string
	UserID     string
	SessionID  string
	MemoryType types.MemoryType
}

var allowedSortFields = map[string]bool{
	"created_at":   true,
	"accessed_at":  true,
	"access_count": true,
	"importance":   true,
}

// Normalize applies defaults and whitelists SortBy against known columns to
// rule out SQL injection through a caller-supplied sort key.
func (o *ListOptions) Normalize() {
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the SQL offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// EligibilityFilter selects a full-corpus slice of live memories for
// maintenance scans (smart pruner, consolidation candidate selection)
// without pagination, since both components must see the whole set to
// score and cluster correctly.
type EligibilityFilter struct {
	MemoryTypes    []types.MemoryType
	MaxAccessCount int // -1 means unbounded
	MinAgeDays     float64
	AsOf           time.Time

	// ExcludeSourceTypes removes memories whose source_type matches any of
	// these values, so e.g. consolidation summaries never re-enter their
	// own eligibility pool.
	ExcludeSourceTypes []string
}

// SearchOptions configures a full-text search query.
type SearchOptions struct {
	Query         string
	Limit         int
	Offset        int
	FuzzyFallback bool
}

// Normalize applies defaults to SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// AccessEvent is a merged access-tracking event ready for a batched flush:
// access_count += Count, accessed_at = Timestamp (if later than stored).
type AccessEvent struct {
	MemoryID  string
	Timestamp time.Time
	Count     int
}
