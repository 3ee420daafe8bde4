package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func TestExtract_SemanticPattern(t *testing.T) {
	e := New()
	candidates, err := e.Extract("This project uses Go and SQLite.")

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.MemoryTypeSemantic, candidates[0].MemoryType)
}

func TestExtract_PreferencePattern(t *testing.T) {
	e := New()
	candidates, err := e.Extract("I prefer tabs over spaces.")

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.MemoryTypePreference, candidates[0].MemoryType)
}

func TestExtract_WorkingFallback(t *testing.T) {
	e := New()
	candidates, err := e.Extract("checking the logs now")

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, types.MemoryTypeWorking, candidates[0].MemoryType)
}

func TestExtract_MultipleStatements(t *testing.T) {
	e := New()
	candidates, err := e.Extract("This project uses Go. I prefer tabs over spaces. We decided to use SQLite.")

	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestExtract_BlankStatementsSkipped(t *testing.T) {
	e := New()
	candidates, err := e.Extract("This project uses Go.   \n\n  ")

	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestExtract_RejectsOversizedContent(t *testing.T) {
	e := New()
	huge := strings.Repeat("a", 100*1024+1)

	_, err := e.Extract(huge)

	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.KindValidation, typedErr.Kind)
}

func TestExtract_ExplicitInstructionBoostsImportance(t *testing.T) {
	e := New()
	plain, err := e.Extract("this is some text about a server")
	require.NoError(t, err)

	explicit, err := e.Extract("Please remember that this is some text about a server")
	require.NoError(t, err)

	require.Len(t, plain, 1)
	require.Len(t, explicit, 1)
	assert.Greater(t, explicit[0].Importance, plain[0].Importance)
}

func TestExtract_EntitiesCaptured(t *testing.T) {
	e := New()
	candidates, err := e.Extract("Acme Corp uses the Stripe API for billing.")

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.NotEmpty(t, candidates[0].Entities)
}

func TestExtract_KeywordsFilterStopwords(t *testing.T) {
	e := New()
	candidates, err := e.Extract("The database stores configuration settings for the service.")

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	for _, kw := range candidates[0].Keywords {
		assert.False(t, keywordStopWords[kw])
		assert.GreaterOrEqual(t, len(kw), 4)
	}
}

func TestExtract_ImportanceAndConfidenceBounded(t *testing.T) {
	e := New()
	candidates, err := e.Extract("My name is ACME BUILD SYSTEM and I prefer tabs. Please remember that I always use four spaces.")

	require.NoError(t, err)
	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.Importance, 0.0)
		assert.LessOrEqual(t, c.Importance, 1.0)
		assert.GreaterOrEqual(t, c.Confidence, 0.0)
		assert.LessOrEqual(t, c.Confidence, 1.0)
	}
}
