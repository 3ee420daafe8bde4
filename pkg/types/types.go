package types

// EntityType constants name the broad categories of entity KuzuMemory's
// extractor harvests from memory content. Unlike the memory-type taxonomy,
// this list is advisory — the extractor assigns freely, the store does not
// validate against it.
const (
	EntityTypePerson       = "person"
	EntityTypeOrganization = "organization"
	EntityTypeTechnology   = "technology"
	EntityTypeLocation     = "location"
)

// DedupMatchType names which layer of the deduplication engine produced a
// match.
type DedupMatchType string

const (
	DedupMatchExact    DedupMatchType = "exact"
	DedupMatchNear     DedupMatchType = "near"
	DedupMatchSemantic DedupMatchType = "semantic"
)

// DedupPolicy controls what happens when Memory Store's write path finds a
// near/semantic duplicate of a candidate being stored.
type DedupPolicy string

const (
	// DedupPolicySkip returns the existing memory's id; nothing is written.
	DedupPolicySkip DedupPolicy = "skip"
	// DedupPolicyUpdate refreshes the existing memory's metadata in place.
	DedupPolicyUpdate DedupPolicy = "update"
	// DedupPolicyMerge stores the candidate alongside the existing memory and
	// links them with a CONSOLIDATED_INTO edge.
	DedupPolicyMerge DedupPolicy = "merge"
)

// RecallStrategy selects which retrieval strategy the recall coordinator
// runs for a given prompt.
type RecallStrategy string

const (
	RecallStrategyAuto     RecallStrategy = "auto"
	RecallStrategyKeyword  RecallStrategy = "keyword"
	RecallStrategyEntity   RecallStrategy = "entity"
	RecallStrategyTemporal RecallStrategy = "temporal"
)

// PruneStrategy selects the pruning profile (threshold and filter set) a
// smart-prune run uses.
type PruneStrategy string

const (
	PruneStrategySafe        PruneStrategy = "safe"
	PruneStrategyIntelligent PruneStrategy = "intelligent"
	PruneStrategyAggressive  PruneStrategy = "aggressive"
	PruneStrategySmart       PruneStrategy = "smart"
)

// ProtectedSourceTypes lists source_type values that the smart pruner
// exempts from scoring regardless of their computed retention score.
var ProtectedSourceTypes = map[string]bool{
	"claude-code-hook":       true,
	"cli":                    true,
	"project-initialization": true,
}
