package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/pkg/logger"
)

// Client wraps the corpus collection: one embedding per keyword,
// listing, alert, or support-doc chunk, with scalar fields for
// filtering.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type CorpusEntry struct {
	ID         string
	Embedding  []float32
	SourceType string
	RefID      string
	Label      string
	Text       string
	Market     string
	Timestamp  time.Time
}

type SearchResult struct {
	ID         string
	SourceType string
	RefID      string
	Label      string
	Text       string
	Market     string
	Score      float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Marketplace corpus embeddings",
		Fields: []*entity.Field{
			{
				Name:       "entry_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
			{
				Name:       "source_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:       "ref_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "label",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "market",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:     "timestamp",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// IP over normalized embeddings, so scores land in [0,1].
	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, entries []CorpusEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	sourceTypes := make([]string, len(entries))
	refIDs := make([]string, len(entries))
	labels := make([]string, len(entries))
	texts := make([]string, len(entries))
	markets := make([]string, len(entries))
	timestamps := make([]int64, len(entries))

	for i, e := range entries {
		ids[i] = e.ID
		embeddings[i] = e.Embedding
		sourceTypes[i] = e.SourceType
		refIDs[i] = e.RefID
		labels[i] = e.Label
		texts[i] = e.Text
		markets[i] = e.Market
		timestamps[i] = e.Timestamp.Unix()
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("entry_id", ids),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("source_type", sourceTypes),
		entity.NewColumnVarChar("ref_id", refIDs),
		entity.NewColumnVarChar("label", labels),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("market", markets),
		entity.NewColumnInt64("timestamp", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert corpus entries: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Corpus entries inserted", zap.Int("count", len(entries)))

	return nil
}

type SearchFilters struct {
	Markets    []string
	KeywordIDs []string
	SourceType string
	From       time.Time
	To         time.Time
}

func (m *Client) Search(ctx context.Context, queryEmbedding []float32, topK int, filters SearchFilters) ([]SearchResult, error) {
	expr := buildFilterExpr(filters)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"entry_id", "source_type", "ref_id", "label", "text", "market"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			entryID, _ := sr.Fields.GetColumn("entry_id").Get(i)
			sourceType, _ := sr.Fields.GetColumn("source_type").Get(i)
			refID, _ := sr.Fields.GetColumn("ref_id").Get(i)
			label, _ := sr.Fields.GetColumn("label").Get(i)
			text, _ := sr.Fields.GetColumn("text").Get(i)
			market, _ := sr.Fields.GetColumn("market").Get(i)

			results = append(results, SearchResult{
				ID:         entryID.(string),
				SourceType: sourceType.(string),
				RefID:      refID.(string),
				Label:      label.(string),
				Text:       text.(string),
				Market:     market.(string),
				Score:      sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filters", expr),
	)

	return results, nil
}

func buildFilterExpr(filters SearchFilters) string {
	var parts []string

	if len(filters.Markets) > 0 {
		quoted := make([]string, len(filters.Markets))
		for i, mk := range filters.Markets {
			quoted[i] = fmt.Sprintf("%q", mk)
		}
		parts = append(parts, fmt.Sprintf("market in [%s]", strings.Join(quoted, ", ")))
	}
	if len(filters.KeywordIDs) > 0 {
		quoted := make([]string, len(filters.KeywordIDs))
		for i, id := range filters.KeywordIDs {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		parts = append(parts, fmt.Sprintf("ref_id in [%s]", strings.Join(quoted, ", ")))
	}
	if filters.SourceType != "" {
		parts = append(parts, fmt.Sprintf("source_type == %q", filters.SourceType))
	}
	if !filters.From.IsZero() {
		parts = append(parts, fmt.Sprintf("timestamp >= %d", filters.From.Unix()))
	}
	if !filters.To.IsZero() {
		parts = append(parts, fmt.Sprintf("timestamp <= %d", filters.To.Unix()))
	}

	return strings.Join(parts, " && ")
}
