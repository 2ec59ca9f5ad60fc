// internal/workers/session/finalize-session/models.go
package finalizesession

type Input struct {
	SessionID string `json:"sessionId"`
}

type Output struct {
	SessionID   string `json:"sessionId"`
	Phase       string `json:"phase"`
	DraftCount  int    `json:"draftCount"`
	FinalizedAt string `json:"finalizedAt"` // ISO 8601
}
