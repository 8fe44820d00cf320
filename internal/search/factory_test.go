package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Kinds(t *testing.T) {
	backend := &scriptedBackend{}

	r, err := New(KindHybrid, backend)
	require.NoError(t, err)
	assert.Equal(t, "hybrid", r.Name())
	assert.IsType(t, (*HybridRetriever)(nil), r)

	r, err = New(KindSemantic, backend)
	require.NoError(t, err)
	assert.Equal(t, "semantic", r.Name())
	assert.IsType(t, (*SemanticRetriever)(nil), r)
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("graph"), &scriptedBackend{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown retriever kind")
}
