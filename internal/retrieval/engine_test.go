package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sellerpulse/backend/internal/capability"
	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/internal/vector/milvus"
)

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubIndex struct {
	results     []milvus.SearchResult
	err         error
	lastFilters milvus.SearchFilters
}

func (i *stubIndex) Search(ctx context.Context, queryEmbedding []float32, topK int, filters milvus.SearchFilters) ([]milvus.SearchResult, error) {
	i.lastFilters = filters
	return i.results, i.err
}

type stubStore struct {
	keywords    []models.Keyword
	listings    []models.Listing
	alerts      []models.Alert
	keywordErr  error
	listingErr  error
	alertErr    error
	lastMarkets []string
}

func (s *stubStore) SearchKeywords(ctx context.Context, terms []string, markets, keywordIDs []string, limit int) ([]models.Keyword, error) {
	s.lastMarkets = markets
	return s.keywords, s.keywordErr
}

func (s *stubStore) SearchListings(ctx context.Context, userID string, terms, markets []string, limit int) ([]models.Listing, error) {
	return s.listings, s.listingErr
}

func (s *stubStore) SearchAlerts(ctx context.Context, userID string, markets, keywordIDs []string, from, to time.Time, limit int) ([]models.Alert, error) {
	return s.alerts, s.alertErr
}

func newTestEngine() (*Engine, *stubEmbedder, *stubIndex, *stubStore) {
	embedder := &stubEmbedder{}
	index := &stubIndex{results: []milvus.SearchResult{
		{ID: "d1_chunk_0", SourceType: models.SourceDoc, RefID: "d1", Label: "Image requirements", Text: "chunk text", Score: 0.82},
	}}
	store := &stubStore{keywords: []models.Keyword{
		{ID: "kw-1", Phrase: "yoga mat", Market: "US", SearchVolume: 5000},
	}}
	return NewEngine(embedder, index, store), embedder, index, store
}

func TestRetrieveJoinsBothLegs(t *testing.T) {
	engine, _, _, _ := newTestEngine()

	got, err := engine.Retrieve(context.Background(), "yoga mat keywords", "u1", capability.KeywordInsights, Filters{}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	types := map[string]bool{}
	for _, s := range got {
		types[s.Type] = true
		if s.Score < 0 || s.Score > 1 {
			t.Errorf("score %f for %s outside [0,1]", s.Score, s.ID)
		}
	}
	if !types[models.SourceDoc] || !types[models.SourceKeyword] {
		t.Errorf("expected both legs represented, got types %v", types)
	}
}

func TestRetrieveSurvivesVectorLegFailure(t *testing.T) {
	engine, embedder, _, _ := newTestEngine()
	embedder.err = errors.New("embedding service down")

	got, err := engine.Retrieve(context.Background(), "yoga mat keywords", "u1", capability.KeywordInsights, Filters{}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("structured results lost when vector leg failed")
	}
	for _, s := range got {
		if s.Type == models.SourceDoc {
			t.Error("vector result present despite leg failure")
		}
	}
}

func TestRetrieveSurvivesStructuredLegFailure(t *testing.T) {
	engine, _, _, store := newTestEngine()
	store.keywords = nil
	store.keywordErr = errors.New("db locked")

	got, err := engine.Retrieve(context.Background(), "yoga mat keywords", "u1", capability.KeywordInsights, Filters{}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Type != models.SourceDoc {
		t.Errorf("got %v, want only the vector result", got)
	}
}

func TestRetrieveFailsWhenBothLegsFail(t *testing.T) {
	engine, embedder, _, store := newTestEngine()
	embedder.err = errors.New("embedding service down")
	store.keywords = nil
	store.keywordErr = errors.New("db locked")

	_, err := engine.Retrieve(context.Background(), "yoga mat keywords", "u1", capability.KeywordInsights, Filters{}, 40)
	if err == nil {
		t.Fatal("expected error when both legs fail")
	}
}

func TestRetrievePartialStructuredLegStillSucceeds(t *testing.T) {
	engine, _, index, store := newTestEngine()
	index.results = nil
	store.alertErr = errors.New("alerts table locked")

	got, err := engine.Retrieve(context.Background(), "yoga mat keywords", "u1", capability.KeywordInsights, Filters{}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Type != models.SourceKeyword {
		t.Errorf("got %v, want the surviving keyword result", got)
	}
}

func TestRetrievePassesMarketFilter(t *testing.T) {
	engine, _, _, store := newTestEngine()

	_, err := engine.Retrieve(context.Background(), "yoga", "u1", capability.KeywordInsights, Filters{Markets: []string{"US", "UK"}}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !reflect.DeepEqual(store.lastMarkets, []string{"US", "UK"}) {
		t.Errorf("markets filter = %v, want [US UK]", store.lastMarkets)
	}
}

// Both legs must see the full filter set; a keyword-scoped request may
// not receive unscoped vector evidence.
func TestRetrievePassesFiltersToVectorLeg(t *testing.T) {
	engine, _, index, _ := newTestEngine()

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	_, err := engine.Retrieve(context.Background(), "yoga", "u1", capability.KeywordInsights, Filters{
		Markets:    []string{"US"},
		KeywordIDs: []string{"kw-1", "kw-2"},
		From:       from,
		To:         to,
	}, 40)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if !reflect.DeepEqual(index.lastFilters.KeywordIDs, []string{"kw-1", "kw-2"}) {
		t.Errorf("vector keyword-id filter = %v, want [kw-1 kw-2]", index.lastFilters.KeywordIDs)
	}
	if !reflect.DeepEqual(index.lastFilters.Markets, []string{"US"}) {
		t.Errorf("vector market filter = %v, want [US]", index.lastFilters.Markets)
	}
	if !index.lastFilters.From.Equal(from) || !index.lastFilters.To.Equal(to) {
		t.Errorf("vector time filter = %v..%v, want %v..%v", index.lastFilters.From, index.lastFilters.To, from, to)
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"What are the best keywords for yoga mats?", []string{"best", "keywords", "yoga", "mats"}},
		{"How can you help?", []string{"help"}},
		{"", nil},
		{"a an at", nil},
	}

	for _, tt := range tests {
		got := queryTerms(tt.query)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("queryTerms(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestAlertScoreBySeverity(t *testing.T) {
	if s := alertScore(models.Alert{Severity: "critical"}); s != 0.9 {
		t.Errorf("critical = %f", s)
	}
	if s := alertScore(models.Alert{Severity: "warning"}); s != 0.75 {
		t.Errorf("warning = %f", s)
	}
	if s := alertScore(models.Alert{Severity: "info"}); s != 0.6 {
		t.Errorf("info = %f", s)
	}
}

func TestScoresAreDeterministic(t *testing.T) {
	k := models.Keyword{Phrase: "yoga mat non slip"}
	terms := []string{"yoga", "mat"}

	first := keywordScore(k, terms)
	for i := 0; i < 10; i++ {
		if keywordScore(k, terms) != first {
			t.Fatal("keywordScore not deterministic")
		}
	}
	if first <= 0.55 || first > 1 {
		t.Errorf("keywordScore with full overlap = %f", first)
	}
}
