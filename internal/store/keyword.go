package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	// runTokenizerName is our script-run tokenizer: ASCII
	// alphanumeric runs and Hangul runs become separate tokens.
	runTokenizerName = "script_run"

	// trigramFilterName is our rune-trigram token filter.
	trigramFilterName = "rune_trigram"

	// runAnalyzerName analyzes mixed Korean/English text.
	runAnalyzerName = "script_run_analyzer"

	// trigramAnalyzerName analyzes text into rune trigrams for
	// partial Hangul matching.
	trigramAnalyzerName = "rune_trigram_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(runTokenizerName, runTokenizerConstructor)
	_ = registry.RegisterTokenFilter(trigramFilterName, trigramFilterConstructor)
}

// IndexDoc is a document to be indexed for keyword search.
type IndexDoc struct {
	ID       string
	Content  string
	Filename string
}

// KeywordResult is a single keyword search result. Score is
// normalized to 0-1 against the top hit of the same result set.
type KeywordResult struct {
	ID    string
	Score float64
}

// KeywordIndex wraps Bleve for BM25 keyword search over mixed
// Korean/English chunk text. Each document indexes four properties:
// run-tokenized content and filename, a trigram shadow of the content
// for partial Hangul matches, and the untokenized filename.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewKeywordIndex creates or opens a keyword index. An empty path
// builds an in-memory index. A corrupted on-disk index is cleared and
// recreated rather than failing startup.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupted index at %s: %w", path, removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupted index: %w (open error: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &KeywordIndex{index: idx, path: path}, nil
}

// createIndexMapping builds the field mappings with our custom
// analyzers.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomAnalyzer(runAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     runTokenizerName,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add run analyzer: %w", err)
	}

	if err := im.AddCustomAnalyzer(trigramAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name, trigramFilterName},
	}); err != nil {
		return nil, fmt.Errorf("add trigram analyzer: %w", err)
	}

	dm := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = runAnalyzerName
	dm.AddFieldMappingsAt(PropText, textField)

	triField := bleve.NewTextFieldMapping()
	triField.Analyzer = trigramAnalyzerName
	dm.AddFieldMappingsAt(PropTextTrigram, triField)

	filenameField := bleve.NewTextFieldMapping()
	filenameField.Analyzer = runAnalyzerName
	dm.AddFieldMappingsAt(PropFilename, filenameField)

	filenameKWField := bleve.NewTextFieldMapping()
	filenameKWField.Analyzer = keyword.Name
	dm.AddFieldMappingsAt(PropFilenameKeyword, filenameKWField)

	im.DefaultMapping = dm
	im.DefaultAnalyzer = runAnalyzerName

	return im, nil
}

// Index adds documents to the index in one batch.
func (k *KeywordIndex) Index(ctx context.Context, docs []*IndexDoc) error {
	if len(docs) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}

	batch := k.index.NewBatch()
	for _, doc := range docs {
		fields := map[string]interface{}{
			PropText:            doc.Content,
			PropTextTrigram:     doc.Content,
			PropFilename:        doc.Filename,
			PropFilenameKeyword: doc.Filename,
		}
		if err := batch.Index(doc.ID, fields); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search runs a BM25 query over the given properties. A property may
// carry a boost suffix ("filename^2"). Scores are normalized against
// the top hit so the caller can apply absolute thresholds.
func (k *KeywordIndex) Search(ctx context.Context, queryStr string, properties []string, limit int) ([]*KeywordResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrClosed
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*KeywordResult{}, nil
	}
	if len(properties) == 0 {
		properties = []string{PropText}
	}

	fieldQueries := make([]bquery.Query, 0, len(properties))
	for _, prop := range properties {
		field, boost := parseBoost(prop)
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		if boost != 1.0 {
			mq.SetBoost(boost)
		}
		fieldQueries = append(fieldQueries, mq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fieldQueries...))
	req.Size = limit

	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	normalizeScores(results)
	return results, nil
}

// normalizeScores scales scores to 0-1 against the top hit.
func normalizeScores(results []*KeywordResult) {
	if len(results) == 0 || results[0].Score == 0 {
		return
	}
	top := results[0].Score
	for _, r := range results {
		r.Score = r.Score / top
	}
}

// parseBoost splits a "field^boost" property spec.
func parseBoost(prop string) (field string, boost float64) {
	field, suffix, found := strings.Cut(prop, "^")
	if !found {
		return prop, 1.0
	}
	b, err := strconv.ParseFloat(suffix, 64)
	if err != nil || b <= 0 {
		return field, 1.0
	}
	return field, b
}

// Delete removes documents from the index.
func (k *KeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}

	batch := k.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (k *KeywordIndex) Count() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return 0, ErrClosed
	}
	return k.index.DocCount()
}

// Close closes the index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.index.Close()
}

// validateIndexIntegrity checks a Bleve index directory before
// opening. A missing directory is fine (the index will be created);
// a present but unreadable index_meta.json means corruption.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks whether an open error indicates index
// corruption rather than a transient failure.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

var (
	asciiRunPattern  = regexp.MustCompile(`[a-z0-9]+`)
	hangulRunPattern = regexp.MustCompile(`[가-힣]+`)
)

// runTokenizerConstructor builds the script-run tokenizer.
func runTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &runTokenizer{}, nil
}

// runTokenizer splits text into ASCII alphanumeric runs and Hangul
// runs. Everything else (punctuation, symbols, other scripts) is a
// separator.
type runTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *runTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := strings.ToLower(string(input))

	var spans [][]int
	spans = append(spans, asciiRunPattern.FindAllStringIndex(text, -1)...)
	spans = append(spans, hangulRunPattern.FindAllStringIndex(text, -1)...)
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	result := make(analysis.TokenStream, 0, len(spans))
	for pos, span := range spans {
		result = append(result, &analysis.Token{
			Term:     []byte(text[span[0]:span[1]]),
			Start:    span[0],
			End:      span[1],
			Position: pos + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}

// trigramFilterConstructor builds the rune-trigram filter.
func trigramFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &trigramFilter{}, nil
}

// trigramFilter expands each token into rune trigrams. Tokens shorter
// than three runes pass through unchanged so short terms stay
// searchable.
type trigramFilter struct{}

// Filter implements analysis.TokenFilter.
func (f *trigramFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	pos := 1
	for _, token := range input {
		runes := []rune(string(token.Term))
		if len(runes) < 3 {
			token.Position = pos
			result = append(result, token)
			pos++
			continue
		}
		for i := 0; i+3 <= len(runes); i++ {
			result = append(result, &analysis.Token{
				Term:     []byte(string(runes[i : i+3])),
				Start:    token.Start,
				End:      token.End,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
		}
	}
	return result
}
