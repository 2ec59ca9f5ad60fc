// internal/workers/drafting/revise-draft/handler.go
package revisedraft

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
	"grantpilot-workers/internal/revision"
)

const TaskType = "revise-draft"

type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
}

type RevisionService interface {
	RequestRevision(ctx context.Context, sessionID, draftStyle, changeRequest string) (*revision.Result, error)
}

type Handler struct {
	config   *Config
	sessions SessionReader
	revision RevisionService
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, sessions SessionReader, revisionSvc RevisionService, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		sessions: sessions,
		revision: revisionSvc,
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
	if session.IsFinalized() {
		return nil, errors.NewSessionFinalizedError(session.ID)
	}
	if session.Phase != models.PhaseFeedback {
		return nil, errors.NewSessionPhaseInvalidError(string(session.Phase), string(models.PhaseFeedback))
	}

	result, err := h.revision.RequestRevision(ctx, input.SessionID, input.Style, input.ChangeRequest)
	if err != nil {
		return nil, err
	}

	return &Output{
		SessionID:          session.ID,
		Style:              result.Draft.Style,
		RemainingAllotment: result.RemainingAllotment,
		RevisionCount:      len(result.Draft.RevisionLog),
		CharCount:          result.Draft.CharCount,
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
