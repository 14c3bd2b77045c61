// Package retrieval gathers evidence for a question from two legs run
// concurrently: the vector index and the structured corpus tables.
// Either leg may fail on its own; retrieval as a whole fails only when
// both do.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/capability"
	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/internal/vector/milvus"
	"github.com/sellerpulse/backend/pkg/logger"
)

// DefaultTopK bounds the candidate volume per request before reranking.
const DefaultTopK = 40

type Filters struct {
	Markets    []string
	KeywordIDs []string
	From       time.Time
	To         time.Time
}

// Embedder turns a query into the vector used for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the similarity-search leg.
type VectorIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int, filters milvus.SearchFilters) ([]milvus.SearchResult, error)
}

// StructuredStore is the relational leg.
type StructuredStore interface {
	SearchKeywords(ctx context.Context, terms []string, markets, keywordIDs []string, limit int) ([]models.Keyword, error)
	SearchListings(ctx context.Context, userID string, terms, markets []string, limit int) ([]models.Listing, error)
	SearchAlerts(ctx context.Context, userID string, markets, keywordIDs []string, from, to time.Time, limit int) ([]models.Alert, error)
}

type Engine struct {
	embedder Embedder
	index    VectorIndex
	store    StructuredStore
}

func NewEngine(embedder Embedder, index VectorIndex, store StructuredStore) *Engine {
	return &Engine{embedder: embedder, index: index, store: store}
}

// Retrieve runs both legs concurrently and joins them. Candidates carry
// a score in [0,1]; topK bounds each leg.
func (e *Engine) Retrieve(ctx context.Context, query, userID string, capab capability.Capability, filters Filters, topK int) ([]models.RetrievedSource, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	var (
		wg            sync.WaitGroup
		vectorSources []models.RetrievedSource
		structSources []models.RetrievedSource
		vectorErr     error
		structErr     error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		vectorSources, vectorErr = e.retrieveVector(ctx, query, filters, topK)
	}()

	go func() {
		defer wg.Done()
		structSources, structErr = e.retrieveStructured(ctx, query, userID, filters, topK)
	}()

	wg.Wait()

	if vectorErr != nil {
		logger.Warn("Vector retrieval failed", zap.Error(vectorErr))
	}
	if structErr != nil {
		logger.Warn("Structured retrieval failed", zap.Error(structErr))
	}
	if vectorErr != nil && structErr != nil {
		return nil, fmt.Errorf("retrieval failed on both legs: %w", vectorErr)
	}

	candidates := append(vectorSources, structSources...)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	logger.Debug("Retrieval joined",
		zap.Int("vector", len(vectorSources)),
		zap.Int("structured", len(structSources)),
		zap.Int("candidates", len(candidates)),
		zap.String("capability", string(capab)),
	)

	return candidates, nil
}

func (e *Engine) retrieveVector(ctx context.Context, query string, filters Filters, topK int) ([]models.RetrievedSource, error) {
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	results, err := e.index.Search(ctx, embedding, topK, milvus.SearchFilters{
		Markets:    filters.Markets,
		KeywordIDs: filters.KeywordIDs,
		From:       filters.From,
		To:         filters.To,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	sources := make([]models.RetrievedSource, 0, len(results))
	for _, r := range results {
		sources = append(sources, models.RetrievedSource{
			ID:      r.RefID,
			Type:    r.SourceType,
			Label:   r.Label,
			Score:   clampScore(float64(r.Score)),
			Context: r.Text,
		})
	}

	return sources, nil
}

func (e *Engine) retrieveStructured(ctx context.Context, query, userID string, filters Filters, topK int) ([]models.RetrievedSource, error) {
	terms := queryTerms(query)
	perTable := topK / 3
	if perTable < 5 {
		perTable = 5
	}

	var sources []models.RetrievedSource
	var firstErr error

	keywords, err := e.store.SearchKeywords(ctx, terms, filters.Markets, filters.KeywordIDs, perTable)
	if err != nil {
		firstErr = err
	}
	for _, k := range keywords {
		sources = append(sources, models.RetrievedSource{
			ID:    k.ID,
			Type:  models.SourceKeyword,
			Label: fmt.Sprintf("%s (%s)", k.Phrase, k.Market),
			Score: keywordScore(k, terms),
			Context: fmt.Sprintf("keyword %q market=%s volume=%d cpc=%.2f competition=%.2f trend=%+.2f",
				k.Phrase, k.Market, k.SearchVolume, k.CPC, k.Competition, k.Trend),
		})
	}

	listings, err := e.store.SearchListings(ctx, userID, terms, filters.Markets, perTable)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	for _, l := range listings {
		sources = append(sources, models.RetrievedSource{
			ID:    l.ID,
			Type:  models.SourceListing,
			Label: l.Title,
			Score: listingScore(l, terms),
			Context: fmt.Sprintf("listing %q asin=%s market=%s price=%.2f rating=%.1f reviews=%d",
				l.Title, l.ASIN, l.Market, l.Price, l.Rating, l.Reviews),
		})
	}

	alerts, err := e.store.SearchAlerts(ctx, userID, filters.Markets, filters.KeywordIDs, filters.From, filters.To, perTable)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	for _, a := range alerts {
		sources = append(sources, models.RetrievedSource{
			ID:      a.ID,
			Type:    models.SourceAlert,
			Label:   fmt.Sprintf("%s alert (%s)", a.Kind, a.Market),
			Score:   alertScore(a),
			Context: fmt.Sprintf("alert kind=%s severity=%s: %s", a.Kind, a.Severity, a.Message),
		})
	}

	// A partial structured leg still counts as a success; only a fully
	// empty leg with an error is a leg failure.
	if len(sources) == 0 && firstErr != nil {
		return nil, firstErr
	}

	return sources, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "what": true,
	"how": true, "are": true, "this": true, "that": true, "about": true,
	"can": true, "you": true, "your": true,
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// Structured candidates get heuristic relevance scores derived only
// from row content and the query terms, so the same rows always score
// the same.

func keywordScore(k models.Keyword, terms []string) float64 {
	return clampScore(0.55 + 0.4*termOverlap(k.Phrase, terms))
}

func listingScore(l models.Listing, terms []string) float64 {
	return clampScore(0.5 + 0.4*termOverlap(l.Title, terms))
}

func alertScore(a models.Alert) float64 {
	switch a.Severity {
	case "critical":
		return 0.9
	case "warning":
		return 0.75
	default:
		return 0.6
	}
}

func termOverlap(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
