// Package composer generates the tier's stylistically distinct drafts in one
// fan-out pass. Per-style calls run concurrently with individual timeouts;
// results are aggregated after every call settles, each style succeeding or
// failing on its own.
package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/metrics"
	"grantpilot-workers/internal/models"
)

type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	CallTimeout  time.Duration
	TargetLength int
}

type Composer struct {
	llm    llm.Client
	styles map[string][]string // tier name -> ordered style list
	opts   Options
	logger logger.Logger
}

func New(client llm.Client, stylesByTier map[string][]string, opts Options, log logger.Logger) *Composer {
	if opts.TargetLength <= 0 {
		opts.TargetLength = 2500
	}
	return &Composer{llm: client, styles: stylesByTier, opts: opts, logger: log}
}

// StylesForTier returns the ordered style list the tier pays for.
func (c *Composer) StylesForTier(tier string) []string {
	return c.styles[tier]
}

// StyleFailure records one style that did not produce a draft.
type StyleFailure struct {
	Style string `json:"style"`
	Error string `json:"error"`
}

// Result is one composition pass: the drafts that succeeded, in rank order,
// and the failures that were recorded instead of silently skipped.
type Result struct {
	Drafts   []*models.Draft
	Failures []StyleFailure
}

// Compose generates one draft per style of the session's tier. The company
// profile is snapshotted before fan-out so every draft in the pass is built
// from the same immutable copy. At least one style must succeed; zero
// successes fail the pass with GENERATION_FAILED.
func (c *Composer) Compose(ctx context.Context, session *models.Session, requirements *models.RequirementsProfile) (*Result, error) {
	styles := c.StylesForTier(session.Tier)
	if len(styles) == 0 {
		return nil, errors.NewGenerationFailedError("", fmt.Errorf("no styles configured for tier %q", session.Tier))
	}

	snapshot := session.Profile.Clone()

	type styleOutcome struct {
		index int
		draft *models.Draft
		err   error
	}

	outcomes := make([]styleOutcome, len(styles))
	var wg sync.WaitGroup
	for i, style := range styles {
		wg.Add(1)
		go func(i int, style string) {
			defer wg.Done()
			draft, err := c.composeStyle(ctx, session, requirements, snapshot, style)
			outcomes[i] = styleOutcome{index: i, draft: draft, err: err}
		}(i, style)
	}
	wg.Wait()

	result := &Result{}
	rank := 0
	for i, outcome := range outcomes {
		if outcome.err != nil {
			metrics.DraftsGenerated.WithLabelValues(styles[i], "failure").Inc()
			result.Failures = append(result.Failures, StyleFailure{
				Style: styles[i],
				Error: outcome.err.Error(),
			})
			c.logger.Warn("style generation failed", map[string]interface{}{
				"sessionId": session.ID,
				"style":     styles[i],
				"error":     outcome.err.Error(),
			})
			continue
		}
		rank++
		outcome.draft.Rank = rank
		outcome.draft.IsRecommended = rank == 1
		metrics.DraftsGenerated.WithLabelValues(styles[i], "success").Inc()
		result.Drafts = append(result.Drafts, outcome.draft)
	}

	if len(result.Drafts) == 0 {
		return nil, errors.NewGenerationFailedError("all", fmt.Errorf("every style failed: %d failures", len(result.Failures)))
	}

	c.logger.Info("composition pass complete", map[string]interface{}{
		"sessionId": session.ID,
		"tier":      session.Tier,
		"succeeded": len(result.Drafts),
		"failed":    len(result.Failures),
	})
	return result, nil
}

func (c *Composer) composeStyle(ctx context.Context, session *models.Session, requirements *models.RequirementsProfile, profile *models.CompanyProfile, style string) (*models.Draft, error) {
	req := llm.Request{
		Model:       c.opts.Model,
		System:      fmt.Sprintf(compositionSystemPrompt, c.opts.TargetLength),
		User:        buildCompositionUserPrompt(requirements, profile, session.SelectedTrack, style),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		JSONMode:    true,
		Timeout:     c.opts.CallTimeout,
	}

	reply, err := c.llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	draft := &models.Draft{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Style:     style,
		Model:     c.opts.Model,
	}

	var decoded struct {
		Sections []models.Section `json:"sections"`
	}
	raw, ok := llm.ExtractJSON(reply)
	if ok && json.Unmarshal(raw, &decoded) == nil {
		draft.Sections = decoded.Sections
	} else {
		// No structured sections: keep the whole reply as one plain-text
		// document rather than discarding the generation.
		draft.PlainText = reply
	}
	draft.Recount()

	if draft.CharCount == 0 {
		return nil, fmt.Errorf("style %s returned an empty document", style)
	}
	return draft, nil
}
