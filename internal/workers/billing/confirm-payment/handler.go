// internal/workers/billing/confirm-payment/handler.go
package confirmpayment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"grantpilot-workers/internal/common/config"
	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/models"
)

const TaskType = "confirm-payment"

type SessionService interface {
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	ConfirmPayment(ctx context.Context, sessionID, tier string) (*models.Session, error)
}

type LedgerService interface {
	ChargeForTier(ctx context.Context, userID, sessionID, tier string) (*models.Payment, error)
	TierFor(name string) (config.TierConfig, bool)
}

type Handler struct {
	config   *Config
	sessions SessionService
	ledger   LedgerService
	logger   logger.Logger
	errors   *errors.ErrorHandler
}

func NewHandler(config *Config, sessions SessionService, ledger LedgerService, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		sessions: sessions,
		ledger:   ledger,
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

// execute validates the payment event against the session before any money
// moves; the charge must land before the session leaves PaymentPending so a
// failed charge leaves the phase untouched.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	session, err := h.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinalized() {
		return nil, errors.NewSessionFinalizedError(session.ID)
	}
	if session.Phase != models.PhasePaymentPending {
		return nil, errors.NewSessionPhaseInvalidError(string(session.Phase), string(models.PhaseAnalyzing))
	}
	if session.Tier != input.Tier {
		return nil, errors.NewPaymentMismatchError(
			"confirmed tier " + input.Tier + " does not match selected tier " + session.Tier)
	}

	tierCfg, ok := h.ledger.TierFor(input.Tier)
	if !ok {
		return nil, errors.NewPaymentMismatchError("unknown tier " + input.Tier)
	}
	if input.Amount != tierCfg.Price {
		return nil, errors.NewPaymentMismatchError(fmt.Sprintf(
			"confirmed amount %d does not match tier %s price %d", input.Amount, input.Tier, tierCfg.Price))
	}

	payment, err := h.ledger.ChargeForTier(ctx, session.UserID, session.ID, input.Tier)
	if err != nil {
		return nil, err
	}

	session, err = h.sessions.ConfirmPayment(ctx, session.ID, input.Tier)
	if err != nil {
		return nil, err
	}

	h.logger.Info("payment confirmed", map[string]interface{}{
		"sessionId": session.ID,
		"paymentId": payment.ID,
		"tier":      input.Tier,
		"amount":    payment.Amount,
	})

	return &Output{
		SessionID:         session.ID,
		PaymentID:         payment.ID,
		Tier:              input.Tier,
		Amount:            payment.Amount,
		RevisionAllotment: tierCfg.Revisions,
		Phase:             string(session.Phase),
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
