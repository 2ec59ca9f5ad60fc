// Package session owns the drafting session lifecycle. Phase transitions are
// validated against a single map; a finalized session accepts reads only.
package session

import (
	"context"

	"github.com/google/uuid"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/metrics"
	"grantpilot-workers/internal/models"
)

// validTransitions is the single source of truth for phase sequencing.
var validTransitions = map[models.Phase][]models.Phase{
	models.PhaseTierSelection:     {models.PhasePaymentPending},
	models.PhasePaymentPending:    {models.PhaseAnalyzing},
	models.PhaseAnalyzing:         {models.PhaseProfileCollection},
	models.PhaseProfileCollection: {models.PhaseComposing},
	models.PhaseComposing:         {models.PhaseFeedback},
	models.PhaseFeedback:          {models.PhaseFinalized},
	models.PhaseFinalized:         {},
}

// Store is the session persistence surface the controller needs.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

type Controller struct {
	store  Store
	logger logger.Logger
}

func NewController(store Store, log logger.Logger) *Controller {
	return &Controller{store: store, logger: log}
}

// Open creates a session in TierSelection for one user and announcement.
func (c *Controller) Open(ctx context.Context, userID, announcementID, source string) (*models.Session, error) {
	session := &models.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		AnnouncementID: announcementID,
		Source:         source,
		Phase:          models.PhaseTierSelection,
		Profile:        models.NewCompanyProfile(),
	}
	if err := c.store.Create(ctx, session); err != nil {
		return nil, err
	}
	c.logger.Info("session opened", map[string]interface{}{
		"sessionId":      session.ID,
		"userId":         userID,
		"announcementId": announcementID,
	})
	return session, nil
}

// Get loads a session. Reads are always allowed, finalized or not.
func (c *Controller) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return c.store.FindByID(ctx, sessionID)
}

// SelectTier records the chosen tier and moves the session to PaymentPending.
func (c *Controller) SelectTier(ctx context.Context, sessionID, tier string) (*models.Session, error) {
	session, err := c.loadMutable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.transition(session, models.PhasePaymentPending); err != nil {
		return nil, err
	}
	session.Tier = tier
	if err := c.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ConfirmPayment reacts to the gateway's payment-confirmed event. Only a
// session awaiting payment accepts it; the event's tier must match the
// session's selection.
func (c *Controller) ConfirmPayment(ctx context.Context, sessionID, tier string) (*models.Session, error) {
	session, err := c.loadMutable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Tier != tier {
		return nil, errors.NewPaymentMismatchError(
			"confirmed tier " + tier + " does not match selected tier " + session.Tier)
	}
	if err := c.transition(session, models.PhaseAnalyzing); err != nil {
		return nil, err
	}
	session.PaymentConfirmed = true
	if err := c.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Advance moves the session to the next phase, enforcing the gate conditions
// that are not plain sequencing: composition requires confirmed payment and
// a sufficient profile; feedback requires at least one draft (checked by the
// caller holding the composition result).
func (c *Controller) Advance(ctx context.Context, sessionID string, to models.Phase) (*models.Session, error) {
	session, err := c.loadMutable(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if to == models.PhaseComposing {
		if !session.PaymentConfirmed {
			return nil, errors.NewSessionPhaseInvalidError(string(session.Phase), string(to))
		}
		if session.CollectorState != models.CollectorSufficientForDraft {
			return nil, errors.NewSessionPhaseInvalidError(string(session.Phase), string(to))
		}
	}
	if err := c.transition(session, to); err != nil {
		return nil, err
	}
	if err := c.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Finalize is the user-triggered terminal transition from Feedback.
func (c *Controller) Finalize(ctx context.Context, sessionID string) (*models.Session, error) {
	return c.Advance(ctx, sessionID, models.PhaseFinalized)
}

// Restart is the only backward movement: a user-initiated return to
// TierSelection. Finalized sessions cannot restart. When wipe is set the
// payment flag, tier, profile, transcript and collector state are cleared;
// completed drafts are left intact either way.
func (c *Controller) Restart(ctx context.Context, sessionID string, wipe bool) (*models.Session, error) {
	session, err := c.loadMutable(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	from := session.Phase
	session.Phase = models.PhaseTierSelection
	if wipe {
		session.Tier = ""
		session.PaymentConfirmed = false
		session.CollectorState = ""
		session.SelectedTrack = ""
		session.Profile = models.NewCompanyProfile()
		session.Transcript = nil
		session.RevisionAllotment = 0
	}
	if err := c.store.Update(ctx, session); err != nil {
		return nil, err
	}

	c.logger.Info("session restarted", map[string]interface{}{
		"sessionId": sessionID,
		"fromPhase": from,
		"wiped":     wipe,
	})
	return session, nil
}

func (c *Controller) loadMutable(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := c.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinalized() {
		return nil, errors.NewSessionFinalizedError(sessionID)
	}
	return session, nil
}

func (c *Controller) transition(session *models.Session, to models.Phase) error {
	for _, allowed := range validTransitions[session.Phase] {
		if allowed == to {
			from := session.Phase
			session.Phase = to
			metrics.SessionPhaseTransitions.WithLabelValues(string(to)).Inc()
			c.logger.Info("session phase transition", map[string]interface{}{
				"sessionId": session.ID,
				"from":      from,
				"to":        to,
			})
			return nil
		}
	}
	return errors.NewSessionPhaseInvalidError(string(session.Phase), string(to))
}
