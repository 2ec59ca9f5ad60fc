// internal/workers/session/finalize-session/handler.go
package finalizesession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

const TaskType = "finalize-session"

type SessionService interface {
	Finalize(ctx context.Context, sessionID string) (*models.Session, error)
}

type DraftReader interface {
	FindBySession(ctx context.Context, sessionID string) ([]*models.Draft, error)
}

type Handler struct {
	config   *Config
	sessions SessionService
	drafts   DraftReader
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, sessions SessionService, drafts DraftReader, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		sessions: sessions,
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
	session, err := h.sessions.Finalize(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	drafts, err := h.drafts.FindBySession(ctx, session.ID)
	if err != nil {
		// The session is already final; a draft-count read failure only
		// degrades the output variables.
		h.logger.Warn("failed to count drafts after finalize", map[string]interface{}{
			"sessionId": session.ID,
			"error":     err.Error(),
		})
	}

	h.logger.Info("session finalized", map[string]interface{}{
		"sessionId":  session.ID,
		"draftCount": len(drafts),
	})

	return &Output{
		SessionID:   session.ID,
		Phase:       string(session.Phase),
		DraftCount:  len(drafts),
		FinalizedAt: time.Now().UTC().Format(time.RFC3339),
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
