// internal/workers/drafting/collect-profile-turn/handler.go
package collectprofileturn

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

const TaskType = "collect-profile-turn"

type AnalyzerService interface {
	GetOrCompute(ctx context.Context, announcementID, source string, forceRefresh bool) (*models.RequirementsProfile, error)
}

type SessionStore interface {
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

type Handler struct {
	config    *Config
	analyzer  AnalyzerService
	store     SessionStore
	collector *collector.Collector
	logger    logger.Logger
	errors    *errors.ErrorHandler
}

func NewHandler(config *Config, analyzerSvc AnalyzerService, store SessionStore, coll *collector.Collector, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		analyzer:  analyzerSvc,
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
	session, err := h.store.FindByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinalized() {
		return nil, errors.NewSessionFinalizedError(session.ID)
	}
	if session.Phase != models.PhaseProfileCollection {
		return nil, errors.NewSessionPhaseInvalidError(string(session.Phase), string(models.PhaseProfileCollection))
	}

	// The requirements profile is immutable and cached, so this read is
	// cheap on every turn.
	requirements, err := h.analyzer.GetOrCompute(ctx, session.AnnouncementID, session.Source, false)
	if err != nil {
		return nil, err
	}

	result, err := h.collector.HandleTurn(ctx, session, requirements, input.Message)
	if err != nil {
		return nil, err
	}

	if err := h.store.Update(ctx, session); err != nil {
		return nil, err
	}

	return &Output{
		SessionID:       session.ID,
		Reply:           result.Reply,
		CollectorState:  string(result.State),
		CompletionRatio: result.CompletionRatio,
		SelectedTrack:   result.SelectedTrack,
		NextField:       result.NextField,
		ExtractedFields: result.ExtractedFields,
		Sufficient:      result.State == models.CollectorSufficientForDraft,
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
