// Package ingestion turns raw support-doc HTML into corpus entries:
// cleaned text, word-window chunks, embeddings, and vector rows.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/metrics"
	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/internal/storage/sqlite"
	"github.com/sellerpulse/backend/internal/vector/milvus"
	"github.com/sellerpulse/backend/pkg/logger"
)

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Processor struct {
	db           *sqlite.Client
	vectorDB     *milvus.Client
	embedder     Embedder
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(db *sqlite.Client, vectorDB *milvus.Client, embedder Embedder, chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap <= 0 {
		chunkOverlap = 100
	}
	return &Processor{
		db:           db,
		vectorDB:     vectorDB,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// ProcessDocument ingests one support document. The document row and
// its chunks land in the relational store; chunk embeddings land in the
// vector index tagged as doc sources.
func (p *Processor) ProcessDocument(ctx context.Context, title, market, topic, htmlContent string) (string, error) {
	logger.Info("Processing document", zap.String("title", title), zap.String("topic", topic))

	cleanedText := cleanHTML(htmlContent)
	if cleanedText == "" {
		return "", fmt.Errorf("no content extracted from HTML")
	}

	now := time.Now()
	docID := uuid.New().String()
	doc := &models.Document{
		ID:         docID,
		Title:      title,
		Market:     market,
		Topic:      topic,
		Summary:    excerpt(cleanedText, 300),
		RawContent: cleanedText,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := p.db.InsertDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}

	chunks := p.chunkText(cleanedText)
	logger.Info("Document chunked", zap.Int("chunks", len(chunks)))

	embeddings, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return "", fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return "", fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	entries := make([]milvus.CorpusEntry, 0, len(chunks))
	for i, chunkText := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)

		dbChunk := &models.DocumentChunk{
			ID:         chunkID,
			DocID:      docID,
			ChunkIndex: i,
			Text:       chunkText,
			CreatedAt:  now,
		}
		if err := p.db.InsertChunk(ctx, dbChunk); err != nil {
			logger.Warn("Failed to insert chunk row", zap.String("chunk_id", chunkID), zap.Error(err))
		}

		entries = append(entries, milvus.CorpusEntry{
			ID:         chunkID,
			Embedding:  embeddings[i],
			SourceType: models.SourceDoc,
			RefID:      docID,
			Label:      title,
			Text:       chunkText,
			Market:     market,
			Timestamp:  now,
		})
	}

	if len(entries) > 0 {
		if err := p.vectorDB.Insert(ctx, entries); err != nil {
			return "", fmt.Errorf("failed to insert into vector DB: %w", err)
		}
	}

	metrics.DocumentsIngested.Inc()
	logger.Info("Document processed",
		zap.String("doc_id", docID),
		zap.Int("chunks", len(entries)),
	)

	return docID, nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func cleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

func (p *Processor) chunkText(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var currentChunk strings.Builder
	currentSize := 0

	for _, word := range words {
		wordLen := len(word) + 1

		if currentSize+wordLen > p.chunkSize && currentChunk.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(currentChunk.String()))

			overlapWords := strings.Fields(currentChunk.String())
			overlapStart := len(overlapWords) - p.chunkOverlap/10
			if overlapStart < 0 {
				overlapStart = 0
			}
			currentChunk.Reset()
			currentChunk.WriteString(strings.Join(overlapWords[overlapStart:], " ") + " ")
			currentSize = currentChunk.Len()
		}

		currentChunk.WriteString(word + " ")
		currentSize += wordLen
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(currentChunk.String()))
	}

	return chunks
}

func excerpt(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
