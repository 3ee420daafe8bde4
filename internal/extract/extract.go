// Package extract implements the Extractor & Classifier (C3): a
// regular-expression-level pattern set that assigns a memory type and
// scores importance/confidence, without any semantic or LLM inference.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

// maxContentBytes caps a single extraction input; longer content is
// rejected with a ValidationError rather than silently truncated.
const maxContentBytes = 100 * 1024

// Candidate is one extracted memory awaiting a write decision.
type Candidate struct {
	Text       string
	MemoryType types.MemoryType
	Importance float64
	Confidence float64
	Keywords   []string
	Entities   []ExtractedEntity
}

// ExtractedEntity is an entity mention found in a candidate's text, with
// its character offset for MENTIONS edge provenance.
type ExtractedEntity struct {
	Name     string
	Type     string
	Position int
}

type pattern struct {
	memoryType types.MemoryType
	re         *regexp.Regexp
}

// patterns are tried in order; the first match wins. Order matters because
// stronger signals (explicit identity/decision statements) must outrank the
// WORKING catch-all.
var patterns = []pattern{
	{types.MemoryTypeSemantic, regexp.MustCompile(`(?i)\b(my name is|this project uses|is (?:built|written) (?:with|in)|the (?:api|database|service) is)\b`)},
	{types.MemoryTypePreference, regexp.MustCompile(`(?i)\b(i prefer|we always|never\b|i (?:like|dislike|hate|love) (?:to|using)?)\b`)},
	{types.MemoryTypeProcedural, regexp.MustCompile(`(?i)\b(to fix|steps?:|to (?:deploy|run|build|set up)|first,? .* then)\b`)},
	{types.MemoryTypeEpisodic, regexp.MustCompile(`(?i)\b(we decided|yesterday|last (?:week|month)|on \w+ \d{1,2}(?:st|nd|rd|th)?,?)\b`)},
	{types.MemoryTypeSensory, regexp.MustCompile(`(?i)\b(i noticed|it (?:looks|sounds|feels) like|observed that)\b`)},
}

var explicitInstructionRe = regexp.MustCompile(`(?i)\bremember that\b|\bplease remember\b|\bdon't forget\b`)

// entityRe is a conservative capitalized-phrase heuristic: any run of one
// or more consecutive capitalized words, including one at sentence start.
// Good enough for MENTIONS edges without semantic NER.
var entityRe = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]+(?:\s[A-Z][a-zA-Z0-9]+)*)\b`)

var stopEntityWords = map[string]bool{
	"I": true, "The": true, "This": true, "We": true, "To": true, "A": true, "An": true,
}

// Extractor runs the pattern set over free-text content.
type Extractor struct{}

// New creates an Extractor. It holds no state: pattern compilation happens
// once at package init.
func New() *Extractor {
	return &Extractor{}
}

// Extract splits content into candidate statements (sentence-level) and
// classifies each one. Non-matching content yields WORKING candidates, not
// an empty list, unless the statement is pure whitespace. Returns a
// ValidationError if content exceeds maxContentBytes.
func (e *Extractor) Extract(content string) ([]Candidate, error) {
	if len(content) > maxContentBytes {
		return nil, types.NewValidationError("content", "exceeds maximum length of 100KB")
	}

	statements := splitStatements(content)
	var candidates []Candidate
	for _, s := range statements {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		candidates = append(candidates, e.classify(s))
	}
	return candidates, nil
}

func (e *Extractor) classify(text string) Candidate {
	memType := types.MemoryTypeWorking
	for _, p := range patterns {
		if p.re.MatchString(text) {
			memType = p.memoryType
			break
		}
	}

	entities := extractEntities(text)
	keywords := extractKeywords(text)

	return Candidate{
		Text:       text,
		MemoryType: memType,
		Importance: scoreImportance(text, memType, entities),
		Confidence: scoreConfidence(memType, entities),
		Keywords:   keywords,
		Entities:   entities,
	}
}

// scoreImportance weights four signals the spec names: explicit-instruction
// score, entity density, uppercase emphasis, and length-within-a-band, then
// adds a per-type prior.
func scoreImportance(text string, memType types.MemoryType, entities []ExtractedEntity) float64 {
	score := 0.3 // base

	if explicitInstructionRe.MatchString(text) {
		score += 0.3
	}

	wordCount := len(strings.Fields(text))
	if wordCount > 0 {
		density := float64(len(entities)) / float64(wordCount)
		score += min01(density) * 0.2
	}

	if hasUppercaseEmphasis(text) {
		score += 0.1
	}

	if wordCount >= 5 && wordCount <= 40 {
		score += 0.1
	}

	switch memType {
	case types.MemoryTypePreference, types.MemoryTypeSemantic:
		score += 0.1
	case types.MemoryTypeProcedural:
		score += 0.05
	}

	return min01(score)
}

// scoreConfidence reflects how strongly the matched pattern (if any)
// constrains the classification, boosted slightly when entities are
// present to corroborate the statement.
func scoreConfidence(memType types.MemoryType, entities []ExtractedEntity) float64 {
	base := 0.6
	if memType == types.MemoryTypeWorking {
		base = 0.4
	}
	if len(entities) > 0 {
		base += 0.1
	}
	return min01(base)
}

func hasUppercaseEmphasis(text string) bool {
	for _, word := range strings.Fields(text) {
		letters := 0
		upper := 0
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsUpper(r) {
					upper++
				}
			}
		}
		if letters >= 3 && upper == letters {
			return true
		}
	}
	return false
}

func min01(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// extractEntities applies the capitalized-phrase heuristic and drops matches
// that are exactly one of the stopEntityWords (I, The, This, ...); other
// sentence-initial capitalized words are kept.
func extractEntities(text string) []ExtractedEntity {
	var out []ExtractedEntity
	matches := entityRe.FindAllStringIndex(text, -1)
	for _, m := range matches {
		name := text[m[0]:m[1]]
		if stopEntityWords[name] {
			continue
		}
		out = append(out, ExtractedEntity{
			Name:     name,
			Type:     guessEntityType(name),
			Position: m[0],
		})
	}
	return out
}

func guessEntityType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "inc") || strings.HasSuffix(lower, "corp") || strings.HasSuffix(lower, "llc"):
		return types.EntityTypeOrganization
	case strings.Contains(lower, "api") || strings.Contains(lower, "db") || strings.Contains(lower, "sql"):
		return types.EntityTypeTechnology
	default:
		return types.EntityTypePerson
	}
}

var keywordStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "and": true, "or": true,
	"we": true, "i": true, "this": true, "that": true, "it": true,
}

// extractKeywords returns distinct non-stopword tokens of length >= 4,
// lowercase, in first-seen order.
func extractKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 4 || keywordStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// splitStatements breaks content into sentence-like statements on
// terminal punctuation and newlines, the unit C3 classifies independently.
func splitStatements(content string) []string {
	replacer := strings.NewReplacer("\n", ". ")
	normalized := replacer.Replace(content)
	return regexp.MustCompile(`[.!?]+\s+|\n+`).Split(normalized, -1)
}
