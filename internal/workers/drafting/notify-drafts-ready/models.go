// internal/workers/drafting/notify-drafts-ready/models.go
package notifydraftsready

type Input struct {
	SessionID         string   `json:"sessionId"`
	Email             string   `json:"email,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	AnnouncementTitle string   `json:"announcementTitle,omitempty"`
	DraftCount        int      `json:"draftCount"`
	FailedStyles      []string `json:"failedStyles,omitempty"`
}

type Output struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"` // "sent", "failed", "disabled"
	SentAt    string `json:"sentAt"` // ISO 8601
}
