package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/yungtweek/tweek.ninja-talkie/internal/config"
	"github.com/yungtweek/tweek.ninja-talkie/internal/contextpack"
	"github.com/yungtweek/tweek.ninja-talkie/internal/embed"
	"github.com/yungtweek/tweek.ninja-talkie/internal/rag"
	"github.com/yungtweek/tweek.ninja-talkie/internal/search"
	"github.com/yungtweek/tweek.ninja-talkie/internal/store"
)

// engine bundles the wired pipeline with its resources so commands
// can close them in one call.
type engine struct {
	pipeline *rag.Pipeline
	backend  *store.MemoryBackend
	embedder embed.Embedder
	cfg      *config.Config
}

func (e *engine) Close() {
	if e.backend != nil {
		_ = e.backend.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
}

// buildEngine loads config, constructs the embedder and in-memory
// backend, indexes the chunks file and wires the pipeline.
func buildEngine(ctx context.Context, dataPath, embedderOverride string) (*engine, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if embedderOverride != "" {
		cfg.Embeddings.Backend = embedderOverride
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	embedder, err := embed.New(ctx, cfg.EmbedConfig())
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	backend, err := store.NewMemoryBackend(embedder, store.MemoryBackendConfig{
		TextKey:     cfg.Retrieval.TextKey,
		KeywordPath: cfg.Store.KeywordPath,
		RRFConstant: cfg.Store.RRFConstant,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("backend: %w", err)
	}

	e := &engine{backend: backend, embedder: embedder, cfg: cfg}

	if dataPath != "" {
		chunks, err := loadChunks(dataPath)
		if err != nil {
			e.Close()
			return nil, err
		}
		if err := backend.Put(ctx, chunks); err != nil {
			e.Close()
			return nil, fmt.Errorf("index chunks: %w", err)
		}
	}

	assembler := contextpack.NewAssembler(
		contextpack.WithEmbedder(embedder),
		contextpack.WithMaxContext(cfg.Context.MaxContext),
		contextpack.WithAnchorLimit(cfg.Context.AnchorLimit),
		contextpack.WithThresholds(cfg.Context.SimilarityThresholds),
		contextpack.WithStopTokens(cfg.Retrieval.StopTokens),
	)

	pipeline, err := rag.NewPipeline(backend, assembler,
		rag.WithKind(search.Kind(cfg.Retrieval.Kind)),
		rag.WithTextKey(cfg.Retrieval.TextKey),
		rag.WithSearchOptions(
			search.WithAlpha(cfg.Retrieval.Alpha),
			search.WithTopK(cfg.Retrieval.TopK),
			search.WithPolicy(cfg.Policy()),
			search.WithStopTokens(cfg.Retrieval.StopTokens),
			search.WithTextKey(cfg.Retrieval.TextKey),
		),
	)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.pipeline = pipeline
	return e, nil
}

// loadChunks reads a JSON array of chunk objects. Each object needs
// an "id"; the remaining fields become stored properties.
func loadChunks(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse chunks %s: %w", path, err)
	}

	chunks := make(map[string]map[string]any, len(items))
	for i, item := range items {
		id, _ := item["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("chunk %d: missing id", i)
		}
		props := make(map[string]any, len(item))
		for k, v := range item {
			if k != "id" {
				props[k] = v
			}
		}
		chunks[id] = props
	}
	return chunks, nil
}

// parseFilters turns repeated key=value flags into the filter map.
// Repeated keys collect into a list (OR semantics downstream).
func parseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		switch existing := filters[key].(type) {
		case nil:
			filters[key] = value
		case []any:
			filters[key] = append(existing, value)
		default:
			filters[key] = []any{existing, value}
		}
	}
	return filters, nil
}
