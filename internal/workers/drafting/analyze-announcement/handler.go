// internal/workers/drafting/analyze-announcement/handler.go
package analyzeannouncement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/collector"
	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

const TaskType = "analyze-announcement"

// AnalyzerService is the announcement analysis surface this worker drives.
type AnalyzerService interface {
	GetOrCompute(ctx context.Context, announcementID, source string, forceRefresh bool) (*models.RequirementsProfile, error)
}

// SessionService advances the session out of Analyzing.
type SessionService interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Advance(ctx context.Context, sessionID string, to models.Phase) (*models.Session, error)
}

// SessionWriter persists the collector's opening message onto the session.
type SessionWriter interface {
	Update(ctx context.Context, session *models.Session) error
}

type Handler struct {
	config    *Config
	analyzer  AnalyzerService
	sessions  SessionService
	store     SessionWriter
	collector *collector.Collector
	logger    logger.Logger
	errors    *errors.ErrorHandler
}

func NewHandler(config *Config, analyzerSvc AnalyzerService, sessions SessionService, store SessionWriter, coll *collector.Collector, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		analyzer:  analyzerSvc,
		sessions:  sessions,
		store:     store,
		collector: coll,
		logger:    scoped,
		errors:    errors.NewErrorHandler(scoped),
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
	requirements, err := h.analyzer.GetOrCompute(ctx, input.AnnouncementID, input.Source, input.ForceRefresh)
	if err != nil {
		return nil, err
	}

	session, err := h.sessions.Advance(ctx, input.SessionID, models.PhaseProfileCollection)
	if err != nil {
		return nil, err
	}

	// Open the conversation: track selection when the announcement offers
	// several tracks, otherwise the first profile question.
	begin := h.collector.Begin(session, requirements)
	if err := h.store.Update(ctx, session); err != nil {
		return nil, err
	}

	return &Output{
		SessionID:      session.ID,
		Phase:          string(session.Phase),
		CollectorState: string(begin.State),
		TrackCount:     len(requirements.Tracks),
		Keywords:       requirements.Keywords,
		OpeningMessage: begin.Reply,
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
