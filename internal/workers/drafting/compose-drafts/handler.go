// internal/workers/drafting/compose-drafts/handler.go
package composedrafts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/composer"
	"grantpilot-workers/internal/models"
)

const TaskType = "compose-drafts"

type AnalyzerService interface {
	GetOrCompute(ctx context.Context, announcementID, source string, forceRefresh bool) (*models.RequirementsProfile, error)
}

type SessionService interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Advance(ctx context.Context, sessionID string, to models.Phase) (*models.Session, error)
}

type ComposerService interface {
	Compose(ctx context.Context, session *models.Session, requirements *models.RequirementsProfile) (*composer.Result, error)
}

type DraftWriter interface {
	Create(ctx context.Context, draft *models.Draft) error
}

type Handler struct {
	config   *Config
	analyzer AnalyzerService
	sessions SessionService
	composer ComposerService
	drafts   DraftWriter
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, analyzerSvc AnalyzerService, sessions SessionService, comp ComposerService, drafts DraftWriter, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		analyzer: analyzerSvc,
		sessions: sessions,
		composer: comp,
		drafts:   drafts,
		logger:   scoped,
		errors:   errors.NewErrorHandler(scoped),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(context.Background(), client, job,
			errors.NewMalformedModelResponseError(fmt.Errorf("parse input: %w", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	session, err := h.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	// Entering Composing enforces confirmed payment and a sufficient
	// profile. A session already in Composing is a retried pass after a
	// full-failure and proceeds directly.
	if session.Phase != models.PhaseComposing {
		session, err = h.sessions.Advance(ctx, input.SessionID, models.PhaseComposing)
		if err != nil {
			return nil, err
		}
	}

	requirements, err := h.analyzer.GetOrCompute(ctx, session.AnnouncementID, session.Source, false)
	if err != nil {
		return nil, err
	}

	// Zero successes surface GENERATION_FAILED here; the session stays in
	// Composing and the job is retried.
	result, err := h.composer.Compose(ctx, session, requirements)
	if err != nil {
		return nil, err
	}

	totalChars := 0
	styles := make([]string, 0, len(result.Drafts))
	for _, draft := range result.Drafts {
		if err := h.drafts.Create(ctx, draft); err != nil {
			return nil, err
		}
		styles = append(styles, draft.Style)
		totalChars += draft.CharCount
	}

	session, err = h.sessions.Advance(ctx, input.SessionID, models.PhaseFeedback)
	if err != nil {
		return nil, err
	}

	return &Output{
		SessionID:        session.ID,
		Phase:            string(session.Phase),
		DraftCount:       len(result.Drafts),
		Styles:           styles,
		RecommendedStyle: styles[0],
		Failures:         result.Failures,
		TotalCharCount:   totalChars,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err.Error()})
	}
}
