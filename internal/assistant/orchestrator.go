// Package assistant composes capability detection, retrieval,
// reranking, prompt assembly, generation, quota accounting, and
// training capture into the end-to-end request cycle.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/capability"
	"github.com/sellerpulse/backend/internal/llm"
	"github.com/sellerpulse/backend/internal/metrics"
	"github.com/sellerpulse/backend/internal/prompt"
	"github.com/sellerpulse/backend/internal/quota"
	"github.com/sellerpulse/backend/internal/retrieval"
	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/internal/training"
	"github.com/sellerpulse/backend/pkg/apperr"
	"github.com/sellerpulse/backend/pkg/logger"
)

// MinUsableSources is the evidence floor below which the orchestrator
// refuses to generate. At 1 it means "no sources, no answer"; it is a
// policy knob, not an accident of comparison.
const MinUsableSources = 1

// NoReliableDataAnswer is the fixed sentinel persisted and returned
// when retrieval produced no usable evidence. Generation is skipped
// entirely on this path.
const NoReliableDataAnswer = "I don't have reliable data to answer that yet. " +
	"Try narrowing the question to a marketplace or keyword you track, or check back once your data has synced."

const titleMaxRunes = 80

type ThreadStore interface {
	EnsureThread(ctx context.Context, userID, threadID, newID string) (*models.Thread, error)
	UpdateThreadTitle(ctx context.Context, threadID, title string) error
	InsertMessage(ctx context.Context, m *models.Message) error
	LoadThreadHistory(ctx context.Context, threadID string, limit int) ([]models.Message, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query, userID string, capab capability.Capability, filters retrieval.Filters, topK int) ([]models.RetrievedSource, error)
}

type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error)
}

type Ledger interface {
	Consume(ctx context.Context, userID, capability string, amount int) error
}

type TrainingCollector interface {
	Eligible(ctx context.Context, userID string) bool
	Collect(sample training.Sample)
}

type Config struct {
	HistoryLimit int
	TopK         int
	RerankLimit  int
	MinSources   int
	Deadline     time.Duration
}

type Orchestrator struct {
	store     ThreadStore
	ledger    Ledger
	retriever Retriever
	builder   *prompt.Builder
	generator Generator
	collector TrainingCollector
	cfg       Config

	newID func() string
	now   func() time.Time
}

func NewOrchestrator(store ThreadStore, ledger Ledger, retriever Retriever, builder *prompt.Builder, generator Generator, collector TrainingCollector, cfg Config) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 12
	}
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.RerankLimit <= 0 {
		cfg.RerankLimit = retrieval.DefaultRerankLimit
	}
	if cfg.MinSources <= 0 {
		cfg.MinSources = MinUsableSources
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 45 * time.Second
	}

	return &Orchestrator{
		store:     store,
		ledger:    ledger,
		retriever: retriever,
		builder:   builder,
		generator: generator,
		collector: collector,
		cfg:       cfg,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// ProcessMessage runs one request through the full cycle:
// quota -> thread -> capability -> retrieve -> rerank -> prompt ->
// generate -> persist -> async training capture.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID string, req Request) (*Response, error) {
	start := o.now()

	// The deadline covers everything from request entry, not just the
	// generation sub-call.
	ctx, cancel := context.WithDeadline(ctx, start.Add(o.cfg.Deadline))
	defer cancel()

	if err := o.ledger.Consume(ctx, userID, quota.CapabilityRequestMessages, 1); err != nil {
		if qe, ok := quota.IsExceeded(err); ok {
			metrics.QuotaDenied.Inc()
			return nil, apperr.New(apperr.CodeQuotaExceeded,
				fmt.Sprintf("monthly message quota reached (%d of %d used)", qe.Used, qe.Limit))
		}
		return nil, fmt.Errorf("quota check: %w", err)
	}

	thread, err := o.store.EnsureThread(ctx, userID, req.ThreadID, o.newID())
	if err != nil {
		return nil, err
	}

	capab := capability.Resolve(req.Capability, req.Message)

	history, err := o.store.LoadThreadHistory(ctx, thread.ID, o.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if thread.MessageCount == 0 && thread.Title == "" {
		if err := o.store.UpdateThreadTitle(ctx, thread.ID, truncateTitle(req.Message)); err != nil {
			logger.Warn("Failed to set thread title", zap.Error(err))
		}
	}

	contextJSON, _ := json.Marshal(req.Context)
	userMsg := &models.Message{
		ID:         o.newID(),
		ThreadID:   thread.ID,
		Role:       models.RoleUser,
		Content:    req.Message,
		Capability: string(capab),
		Context:    string(contextJSON),
		CreatedAt:  o.now(),
	}
	if err := o.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	filters := retrieval.Filters{
		Markets:    req.Context.Marketplaces,
		KeywordIDs: req.Context.KeywordIDs,
	}
	if req.Context.TimeRange != nil {
		filters.From = req.Context.TimeRange.From
		filters.To = req.Context.TimeRange.To
	}

	candidates, err := o.retriever.Retrieve(ctx, req.Message, userID, capab, filters, o.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	ranked := retrieval.Rerank(candidates, o.cfg.RerankLimit)
	metrics.RetrievedSources.Observe(float64(len(ranked)))

	if len(ranked) < o.cfg.MinSources {
		return o.hardStop(ctx, thread, capab, start)
	}

	p := o.builder.Build(capab, ranked, history, req.Message)

	answer, modelInfo, fellBack := o.generate(ctx, p, req.Options, ranked)

	eligible := !fellBack && o.collector.Eligible(ctx, userID)

	sourcesJSON, _ := json.Marshal(ranked)
	assistantMsg := &models.Message{
		ID:                o.newID(),
		ThreadID:          thread.ID,
		Role:              models.RoleAssistant,
		Content:           answer,
		Capability:        string(capab),
		ModelID:           modelInfo.ID,
		InputTokens:       modelInfo.Usage.InputTokens,
		OutputTokens:      modelInfo.Usage.OutputTokens,
		LatencyMS:         modelInfo.LatencyMS,
		Temperature:       req.Options.Temperature,
		UsedRAG:           true,
		FallbackToGeneric: fellBack,
		SourcesJSON:       string(sourcesJSON),
		TrainingEligible:  eligible,
		CreatedAt:         o.now(),
	}
	if err := o.store.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	resp := &Response{
		ThreadID:   thread.ID,
		MessageID:  assistantMsg.ID,
		Answer:     answer,
		Capability: string(capab),
		Sources:    sourceRefs(ranked),
		References: groupReferences(ranked),
		Model:      modelInfo,
		Flags: Flags{
			UsedRAG:           true,
			FallbackToGeneric: fellBack,
		},
	}

	if eligible {
		sample := training.Sample{
			UserID:     userID,
			Capability: string(capab),
			Market:     firstMarket(req.Context.Marketplaces),
			Prompt:     p.System + "\n\n" + p.User,
			Response:   answer,
			Sources:    ranked,
		}
		// Detached from the request path: its failures are its own.
		go o.collector.Collect(sample)
	}

	logger.Info("Assistant request completed",
		zap.String("thread_id", thread.ID),
		zap.String("capability", string(capab)),
		zap.Int("sources", len(ranked)),
		zap.Bool("fallback", fellBack),
		zap.Duration("elapsed", o.now().Sub(start)),
	)

	return resp, nil
}

// generate calls the backend once; on any generation-layer failure it
// degrades to the deterministic source-list fallback instead of
// propagating or retrying.
func (o *Orchestrator) generate(ctx context.Context, p prompt.Prompt, opts RequestOptions, ranked []models.RetrievedSource) (string, ModelInfo, bool) {
	result, err := o.generator.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: p.System,
		UserPrompt:   p.User,
		Temperature:  opts.Temperature,
		MaxTokens:    opts.MaxTokens,
	})
	if err != nil {
		logger.Warn("Generation failed, using fallback answer", zap.Error(err))
		metrics.GenerationFallbacks.Inc()
		return llm.FallbackAnswer(ranked), ModelInfo{}, true
	}

	metrics.LLMTokens.WithLabelValues(result.ModelID, "input").Add(float64(result.InputTokens))
	metrics.LLMTokens.WithLabelValues(result.ModelID, "output").Add(float64(result.OutputTokens))

	return result.Content, ModelInfo{
		ID:        result.ModelID,
		Usage:     Usage{InputTokens: result.InputTokens, OutputTokens: result.OutputTokens},
		LatencyMS: result.LatencyMS,
	}, false
}

// hardStop is the designed terminal state for absent evidence: a fixed
// no-data answer is persisted and returned, generation never runs, and
// the message is never training-eligible.
func (o *Orchestrator) hardStop(ctx context.Context, thread *models.Thread, capab capability.Capability, start time.Time) (*Response, error) {
	metrics.InsufficientContext.Inc()

	msg := &models.Message{
		ID:                  o.newID(),
		ThreadID:            thread.ID,
		Role:                models.RoleAssistant,
		Content:             NoReliableDataAnswer,
		Capability:          string(capab),
		InsufficientContext: true,
		SourcesJSON:         "[]",
		CreatedAt:           o.now(),
	}
	if err := o.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist no-data message: %w", err)
	}

	logger.Info("Hard stop: no usable sources",
		zap.String("thread_id", thread.ID),
		zap.String("capability", string(capab)),
		zap.Duration("elapsed", o.now().Sub(start)),
	)

	return &Response{
		ThreadID:   thread.ID,
		MessageID:  msg.ID,
		Answer:     NoReliableDataAnswer,
		Capability: string(capab),
		Sources:    []SourceRef{},
		References: References{Keywords: []string{}, Listings: []string{}, Alerts: []string{}, Docs: []string{}},
		Flags:      Flags{InsufficientContext: true},
	}, nil
}

func sourceRefs(sources []models.RetrievedSource) []SourceRef {
	refs := make([]SourceRef, 0, len(sources))
	for _, s := range sources {
		refs = append(refs, SourceRef{ID: s.ID, Type: s.Type, Label: s.Label, Score: s.Score})
	}
	return refs
}

func groupReferences(sources []models.RetrievedSource) References {
	refs := References{
		Keywords: []string{},
		Listings: []string{},
		Alerts:   []string{},
		Docs:     []string{},
	}
	for _, s := range sources {
		switch s.Type {
		case models.SourceKeyword:
			refs.Keywords = append(refs.Keywords, s.ID)
		case models.SourceListing:
			refs.Listings = append(refs.Listings, s.ID)
		case models.SourceAlert:
			refs.Alerts = append(refs.Alerts, s.ID)
		case models.SourceDoc:
			refs.Docs = append(refs.Docs, s.ID)
		}
	}
	return refs
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxRunes {
		return message
	}
	return string(runes[:titleMaxRunes])
}

func firstMarket(markets []string) string {
	if len(markets) == 0 {
		return ""
	}
	return markets[0]
}
