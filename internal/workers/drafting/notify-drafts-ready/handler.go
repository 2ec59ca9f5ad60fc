// internal/workers/drafting/notify-drafts-ready/handler.go
package notifydraftsready

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/notify"
)

const TaskType = "notify-drafts-ready"

type NotifierService interface {
	SendDraftsReady(ctx context.Context, ready notify.DraftsReady) (string, error)
}

type Handler struct {
	config   *Config
	notifier NotifierService
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, notifier NotifierService, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		notifier: notifier,
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
		// Notification trouble is retried by the engine but never blocks
		// draft delivery in the process model.
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	status, err := h.notifier.SendDraftsReady(ctx, notify.DraftsReady{
		SessionID:         input.SessionID,
		AnnouncementTitle: input.AnnouncementTitle,
		DraftCount:        input.DraftCount,
		FailedStyles:      input.FailedStyles,
		Email:             input.Email,
		Phone:             input.Phone,
	})
	if err != nil {
		return nil, err
	}
	return &Output{
		SessionID: input.SessionID,
		Status:    status,
		SentAt:    time.Now().UTC().Format(time.RFC3339),
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
