// Package ledger meters credit balances and revision allotments. Every
// mutation runs in a transaction so concurrent charges or revision requests
// against the same account cannot both succeed on funds that cover only one.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"grantpilot-workers/internal/common/config"
	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/metrics"
	"grantpilot-workers/internal/models"
)

type Ledger struct {
	db     *sql.DB
	tiers  map[string]config.TierConfig
	logger logger.Logger
}

func New(db *sql.DB, tiers map[string]config.TierConfig, log logger.Logger) *Ledger {
	return &Ledger{db: db, tiers: tiers, logger: log}
}

// GetBalance reads the current spendable balance. Unknown accounts read as
// zero balance rather than an error.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("select balance", err)
	}
	return balance, nil
}

// ChargeForTier atomically debits the tier price and sets the session's
// revision allotment to the tier's fixed count. The account row is locked for
// the duration of the transaction; insufficient balance fails cleanly with
// the balance untouched. A payments audit row is written on success.
//
// The charge is idempotent per session. A payment-confirmed event can be
// delivered more than once when a later step fails and the job is retried;
// when a payments row already exists for the session the recorded payment is
// returned and the balance stays untouched.
func (l *Ledger) ChargeForTier(ctx context.Context, userID, sessionID, tier string) (*models.Payment, error) {
	tierCfg, ok := l.tiers[tier]
	if !ok {
		return nil, errors.NewPaymentMismatchError("unknown tier: " + tier)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("begin charge transaction", err)
	}
	defer tx.Rollback()

	var existing models.Payment
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, session_id, tier, amount, created_at FROM payments WHERE session_id = $1`,
		sessionID,
	).Scan(&existing.ID, &existing.UserID, &existing.SessionID,
		&existing.Tier, &existing.Amount, &existing.CreatedAt)
	if err == nil {
		l.logger.Info("session already charged, replaying recorded payment", map[string]interface{}{
			"sessionId": sessionID,
			"paymentId": existing.ID,
		})
		return &existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.NewQueryExecutionFailedError("check existing payment", err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, errors.NewInsufficientCreditError(userID, 0, tierCfg.Price)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("lock credit account", err)
	}

	if balance < tierCfg.Price {
		return nil, errors.NewInsufficientCreditError(userID, balance, tierCfg.Price)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE credit_accounts SET balance = balance - $2, updated_at = $3 WHERE user_id = $1`,
		userID, tierCfg.Price, time.Now(),
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("debit balance", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE drafting_sessions SET revision_allotment = $2, updated_at = $3 WHERE id = $1`,
		sessionID, tierCfg.Revisions, time.Now(),
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("set revision allotment", err)
	}

	payment := &models.Payment{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Tier:      tier,
		Amount:    tierCfg.Price,
		CreatedAt: time.Now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, session_id, tier, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		payment.ID, payment.UserID, payment.SessionID, payment.Tier,
		payment.Amount, payment.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("insert payment", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("commit charge", err)
	}

	l.logger.Info("tier charged", map[string]interface{}{
		"userId":    userID,
		"sessionId": sessionID,
		"tier":      tier,
		"amount":    tierCfg.Price,
		"allotment": tierCfg.Revisions,
	})
	return payment, nil
}

// ConsumeRevision decrements the session's revision allotment by one. The
// conditional update only matches rows with a positive allotment, so the
// counter can never go negative even under concurrent requests.
func (l *Ledger) ConsumeRevision(ctx context.Context, sessionID string) (int, error) {
	var remaining int
	err := l.db.QueryRowContext(ctx, `
		UPDATE drafting_sessions
		SET revision_allotment = revision_allotment - 1, updated_at = $2
		WHERE id = $1 AND revision_allotment > 0
		RETURNING revision_allotment`,
		sessionID, time.Now(),
	).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, errors.NewNoRevisionsRemainingError(sessionID)
	}
	if err != nil {
		return 0, errors.NewQueryExecutionFailedError("consume revision", err)
	}

	metrics.RevisionsConsumed.Inc()
	l.logger.Info("revision consumed", map[string]interface{}{
		"sessionId": sessionID,
		"remaining": remaining,
	})
	return remaining, nil
}

// RefundRevision compensates a consume whose generation failed afterwards.
// Spending a unit on a non-result is not an acceptable terminal state.
func (l *Ledger) RefundRevision(ctx context.Context, sessionID string) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE drafting_sessions
		SET revision_allotment = revision_allotment + 1, updated_at = $2
		WHERE id = $1`,
		sessionID, time.Now(),
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("refund revision", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("refund revision", err)
	}
	if rows == 0 {
		return errors.NewSessionNotFoundError(sessionID)
	}

	metrics.RevisionsRefunded.Inc()
	l.logger.Warn("revision refunded after failed generation", map[string]interface{}{
		"sessionId": sessionID,
	})
	return nil
}

// TierFor exposes the configured tier, letting callers validate payment
// events against the expected price.
func (l *Ledger) TierFor(name string) (config.TierConfig, bool) {
	cfg, ok := l.tiers[name]
	return cfg, ok
}
