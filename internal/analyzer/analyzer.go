// Package analyzer turns a raw grant announcement into a structured
// requirements profile. Computed profiles are cached per (source,
// announcement id) with a 7 day TTL; the announcement's requirements do not
// change between attempts, so misses retry the model call with bounded
// exponential backoff before surfacing ANALYSIS_UNAVAILABLE.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/metrics"
	"grantpilot-workers/internal/common/validation"
	"grantpilot-workers/internal/models"
)

const (
	maxAttempts  = 3
	retryBackoff = 1 * time.Second
)

// profileSchema guards what the model claims it returned before it is cached.
// An invalid or empty profile is never substituted for a real one.
const profileSchema = `{
	"type": "object",
	"properties": {
		"eligibility": {"type": "string", "minLength": 1},
		"scoring_criteria": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"weight": {"type": "integer"},
					"detail": {"type": "string"}
				},
				"required": ["name"]
			}
		},
		"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"writing_strategy": {"type": "string"},
		"tracks": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"goal": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["name"]
			}
		}
	},
	"required": ["eligibility", "scoring_criteria", "keywords"]
}`

// AnnouncementReader is the read-only announcement lookup the analyzer needs.
type AnnouncementReader interface {
	Get(ctx context.Context, announcementID, source string) (*models.Announcement, error)
}

type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	CallTimeout  time.Duration
	CacheTTL     time.Duration
	RetryBackoff time.Duration
}

type Analyzer struct {
	announcements AnnouncementReader
	cache         redis.Cmdable
	llm           llm.Client
	opts          Options
	logger        logger.Logger
}

func New(announcements AnnouncementReader, cache redis.Cmdable, client llm.Client, opts Options, log logger.Logger) *Analyzer {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = retryBackoff
	}
	return &Analyzer{
		announcements: announcements,
		cache:         cache,
		llm:           client,
		opts:          opts,
		logger:        log,
	}
}

func cacheKey(source, announcementID string) string {
	return fmt.Sprintf("reqprofile:%s:%s", source, announcementID)
}

// GetOrCompute returns the cached requirements profile, or computes and
// caches one. forceRefresh bypasses the cache read but still writes.
func (a *Analyzer) GetOrCompute(ctx context.Context, announcementID, source string, forceRefresh bool) (*models.RequirementsProfile, error) {
	key := cacheKey(source, announcementID)

	if !forceRefresh {
		if profile := a.readCache(ctx, key); profile != nil {
			metrics.AnalysisCacheHits.WithLabelValues("hit").Inc()
			return profile, nil
		}
		metrics.AnalysisCacheHits.WithLabelValues("miss").Inc()
	}

	ann, err := a.announcements.Get(ctx, announcementID, source)
	if err != nil {
		return nil, err
	}

	profile, err := a.compute(ctx, ann)
	if err != nil {
		return nil, err
	}

	a.writeCache(ctx, key, profile)
	return profile, nil
}

func (a *Analyzer) readCache(ctx context.Context, key string) *models.RequirementsProfile {
	raw, err := a.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		// Cache trouble degrades to a recompute, it never blocks analysis.
		a.logger.Warn("analysis cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil
	}

	var profile models.RequirementsProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		a.logger.Warn("analysis cache entry corrupt, recomputing", map[string]interface{}{
			"key": key,
		})
		return nil
	}
	return &profile
}

func (a *Analyzer) writeCache(ctx context.Context, key string, profile *models.RequirementsProfile) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, raw, a.opts.CacheTTL).Err(); err != nil {
		a.logger.Warn("analysis cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (a *Analyzer) compute(ctx context.Context, ann *models.Announcement) (*models.RequirementsProfile, error) {
	req := llm.Request{
		Model:       a.opts.Model,
		System:      analysisSystemPrompt,
		User:        buildAnalysisUserPrompt(ann),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		JSONMode:    true,
		Timeout:     a.opts.CallTimeout,
	}

	var lastErr error
	backoff := a.opts.RetryBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, errors.NewAnalysisUnavailableError(ann.AnnouncementID, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		reply, err := a.llm.Complete(ctx, req)
		if err != nil {
			lastErr = err
			a.logger.Warn("analysis call failed", map[string]interface{}{
				"announcementId": ann.AnnouncementID,
				"attempt":        attempt,
				"error":          err.Error(),
			})
			continue
		}

		profile, err := a.parseProfile(ann, reply)
		if err != nil {
			lastErr = err
			a.logger.Warn("analysis reply rejected", map[string]interface{}{
				"announcementId": ann.AnnouncementID,
				"attempt":        attempt,
				"error":          err.Error(),
			})
			continue
		}
		return profile, nil
	}

	return nil, errors.NewAnalysisUnavailableError(ann.AnnouncementID, lastErr)
}

func (a *Analyzer) parseProfile(ann *models.Announcement, reply string) (*models.RequirementsProfile, error) {
	raw, ok := llm.ExtractJSON(reply)
	if !ok {
		return nil, fmt.Errorf("no JSON object in analysis reply")
	}

	result, err := validation.ValidateJSON(raw, profileSchema)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, fmt.Errorf("analysis reply failed schema validation: %v", result.GetErrorMessages())
	}

	var decoded struct {
		Eligibility     string                    `json:"eligibility"`
		ScoringCriteria []models.ScoringCriterion `json:"scoring_criteria"`
		Keywords        []string                  `json:"keywords"`
		WritingStrategy string                    `json:"writing_strategy"`
		Tracks          []models.TaskTrack        `json:"tracks"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	return &models.RequirementsProfile{
		AnnouncementID:  ann.AnnouncementID,
		Source:          ann.Source,
		Eligibility:     decoded.Eligibility,
		ScoringCriteria: decoded.ScoringCriteria,
		Keywords:        decoded.Keywords,
		WritingStrategy: decoded.WritingStrategy,
		Tracks:          decoded.Tracks,
		ComputedAt:      time.Now(),
	}, nil
}
