package models

import "time"

// Phase is the drafting session lifecycle stage. Transitions are linear and
// validated by the session controller; only an explicit user restart moves
// backward.
type Phase string

const (
	PhaseTierSelection     Phase = "TIER_SELECTION"
	PhasePaymentPending    Phase = "PAYMENT_PENDING"
	PhaseAnalyzing         Phase = "ANALYZING"
	PhaseProfileCollection Phase = "PROFILE_COLLECTION"
	PhaseComposing         Phase = "COMPOSING"
	PhaseFeedback          Phase = "FEEDBACK"
	PhaseFinalized         Phase = "FINALIZED"
)

// CollectorState is the profile collector's sub-state within the
// PROFILE_COLLECTION phase.
type CollectorState string

const (
	CollectorAwaitingTrackSelection CollectorState = "AWAITING_TRACK_SELECTION"
	CollectorCollecting             CollectorState = "COLLECTING"
	CollectorSufficientForDraft     CollectorState = "SUFFICIENT_FOR_DRAFT"
)

// Tier names. Prices, revision allotments and style lists per tier live in
// configuration, not here.
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// Turn is one transcript entry, user or assistant.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// Session is the aggregate root for one drafting flow: one user, one
// announcement, one conversation.
type Session struct {
	ID                string          `json:"id" db:"id"`
	UserID            string          `json:"userId" db:"user_id"`
	AnnouncementID    string          `json:"announcementId" db:"announcement_id"`
	Source            string          `json:"source" db:"source"`
	Tier              string          `json:"tier,omitempty" db:"tier"`
	PaymentConfirmed  bool            `json:"paymentConfirmed" db:"payment_confirmed"`
	Phase             Phase           `json:"phase" db:"phase"`
	CollectorState    CollectorState  `json:"collectorState,omitempty" db:"collector_state"`
	SelectedTrack     string          `json:"selectedTrack,omitempty" db:"selected_track"`
	Profile           *CompanyProfile `json:"profile,omitempty" db:"profile"`
	Transcript        []Turn          `json:"transcript,omitempty" db:"transcript"`
	RevisionAllotment int             `json:"revisionAllotment" db:"revision_allotment"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsFinalized reports whether the session is terminal and write-protected.
func (s *Session) IsFinalized() bool {
	return s.Phase == PhaseFinalized
}

// AppendTurn adds a transcript entry.
func (s *Session) AppendTurn(turn Turn) {
	s.Transcript = append(s.Transcript, turn)
}

// SessionRepository defines session data access.
type SessionRepository interface {
	Create(session *Session) error
	FindByID(sessionID string) (*Session, error)
	FindActiveByUser(userID string) ([]*Session, error)
	Update(session *Session) error
}
