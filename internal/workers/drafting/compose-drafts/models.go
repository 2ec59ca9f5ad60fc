// internal/workers/drafting/compose-drafts/models.go
package composedrafts

import "grantpilot-workers/internal/composer"

type Input struct {
	SessionID string `json:"sessionId"`
}

type Output struct {
	SessionID        string                  `json:"sessionId"`
	Phase            string                  `json:"phase"`
	DraftCount       int                     `json:"draftCount"`
	Styles           []string                `json:"styles"`
	RecommendedStyle string                  `json:"recommendedStyle"`
	Failures         []composer.StyleFailure `json:"failures,omitempty"`
	TotalCharCount   int                     `json:"totalCharCount"`
}
