// internal/workers/drafting/revise-draft/models.go
package revisedraft

type Input struct {
	SessionID     string `json:"sessionId"`
	Style         string `json:"style"`
	ChangeRequest string `json:"changeRequest"`
}

type Output struct {
	SessionID          string `json:"sessionId"`
	Style              string `json:"style"`
	RemainingAllotment int    `json:"remainingAllotment"`
	RevisionCount      int    `json:"revisionCount"`
	CharCount          int    `json:"charCount"`
}
