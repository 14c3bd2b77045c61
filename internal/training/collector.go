// Package training captures prompt/response/source tuples for future
// fine-tuning. Capture runs after the response has been returned and
// lives in its own failure domain: errors are logged, never surfaced,
// never retried synchronously.
package training

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/storage/models"
	"github.com/sellerpulse/backend/pkg/logger"
)

// PlanLookup is the external plan/consent collaborator.
type PlanLookup interface {
	TrainingConsent(ctx context.Context, userID string) (bool, error)
}

type SampleStore interface {
	InsertTrainingSample(ctx context.Context, s *models.TrainingSample) error
}

// EligibilityCache shortcuts repeated consent lookups.
type EligibilityCache interface {
	GetEligibility(ctx context.Context, userID string) (eligible, found bool, err error)
	SetEligibility(ctx context.Context, userID string, eligible bool, ttl time.Duration) error
}

type Sample struct {
	UserID     string
	Capability string
	Market     string
	Prompt     string
	Response   string
	Sources    []models.RetrievedSource
}

type Collector struct {
	plans PlanLookup
	store SampleStore
	cache EligibilityCache
	ttl   time.Duration
}

func NewCollector(plans PlanLookup, store SampleStore, cache EligibilityCache, cacheTTL time.Duration) *Collector {
	return &Collector{plans: plans, store: store, cache: cache, ttl: cacheTTL}
}

// Eligible consults the consent collaborator, cached per user. A failed
// lookup means not eligible: capture is strictly opt-in.
func (c *Collector) Eligible(ctx context.Context, userID string) bool {
	if c.cache != nil {
		if eligible, found, err := c.cache.GetEligibility(ctx, userID); err == nil && found {
			return eligible
		}
	}

	eligible, err := c.plans.TrainingConsent(ctx, userID)
	if err != nil {
		logger.Warn("Consent lookup failed, treating as not eligible",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}

	if c.cache != nil {
		if err := c.cache.SetEligibility(ctx, userID, eligible, c.ttl); err != nil {
			logger.Debug("Failed to cache eligibility", zap.Error(err))
		}
	}

	return eligible
}

// Collect persists one sample. Callers run it detached from the request
// path; any panic or error stays inside.
func (c *Collector) Collect(sample Sample) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Training capture panicked", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sourcesJSON, err := json.Marshal(sample.Sources)
	if err != nil {
		logger.Error("Failed to encode training sources", zap.Error(err))
		return
	}

	record := &models.TrainingSample{
		ID:          uuid.New().String(),
		UserID:      sample.UserID,
		Capability:  sample.Capability,
		Market:      sample.Market,
		Prompt:      sample.Prompt,
		Response:    sample.Response,
		SourcesJSON: string(sourcesJSON),
		CollectedAt: time.Now(),
	}

	if err := c.store.InsertTrainingSample(ctx, record); err != nil {
		logger.Error("Failed to persist training sample",
			zap.String("user_id", sample.UserID),
			zap.Error(err),
		)
		return
	}

	logger.Debug("Training sample collected",
		zap.String("sample_id", record.ID),
		zap.String("capability", sample.Capability),
	)
}
