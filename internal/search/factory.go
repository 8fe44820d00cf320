package search

import (
	"fmt"

	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// Kind selects a retriever strategy.
type Kind string

const (
	KindHybrid   Kind = "hybrid"
	KindSemantic Kind = "semantic"
)

// New constructs the retriever for the given kind.
func New(kind Kind, backend store.Backend, opts ...Option) (Retriever, error) {
	switch kind {
	case KindHybrid:
		return NewHybridRetriever(backend, opts...)
	case KindSemantic:
		return NewSemanticRetriever(backend, opts...)
	default:
		return nil, fmt.Errorf("unknown retriever kind: %q", kind)
	}
}
