package models

import "time"

// Style identifiers. data, story and balanced are base rhetorical styles;
// aggressive and conservative blend them.
const (
	StyleData         = "data"
	StyleStory        = "story"
	StyleBalanced     = "balanced"
	StyleAggressive   = "aggressive"
	StyleConservative = "conservative"
)

// Section is one titled block of a generated document.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// RevisionEntry records one applied revision: what was asked, what the
// content was before, and what replaced it.
type RevisionEntry struct {
	RequestedChange string    `json:"requestedChange"`
	PriorContent    string    `json:"priorContent"`
	NewContent      string    `json:"newContent"`
	AppliedAt       time.Time `json:"appliedAt"`
}

// Draft is one generated application document variant. Created once per
// style at composition time, then mutated in place by revisions; never
// deleted.
type Draft struct {
	ID            string          `json:"id" db:"id"`
	SessionID     string          `json:"sessionId" db:"session_id"`
	Style         string          `json:"style" db:"style"`
	Rank          int             `json:"rank" db:"rank"`
	IsRecommended bool            `json:"isRecommended" db:"is_recommended"`
	Sections      []Section       `json:"sections,omitempty" db:"sections"`
	PlainText     string          `json:"plainText,omitempty" db:"plain_text"`
	CharCount     int             `json:"charCount" db:"char_count"`
	Model         string          `json:"model,omitempty" db:"model"`
	RevisionLog   []RevisionEntry `json:"revisionLog,omitempty" db:"revision_log"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updated_at"`
}

// FullText renders the draft as plain text, joining sections when present.
func (d *Draft) FullText() string {
	if len(d.Sections) == 0 {
		return d.PlainText
	}
	text := ""
	for i, sec := range d.Sections {
		if i > 0 {
			text += "\n\n"
		}
		if sec.Title != "" {
			text += sec.Title + "\n"
		}
		text += sec.Content
	}
	return text
}

// Recount refreshes CharCount from the current content.
func (d *Draft) Recount() {
	d.CharCount = len([]rune(d.FullText()))
}

// DraftRepository defines draft data access.
type DraftRepository interface {
	Create(draft *Draft) error
	FindByID(draftID string) (*Draft, error)
	FindBySession(sessionID string) ([]*Draft, error)
	FindBySessionAndStyle(sessionID, style string) (*Draft, error)
	Update(draft *Draft) error
}
