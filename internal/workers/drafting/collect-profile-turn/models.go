// internal/workers/drafting/collect-profile-turn/models.go
package collectprofileturn

type Input struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type Output struct {
	SessionID       string   `json:"sessionId"`
	Reply           string   `json:"reply"`
	CollectorState  string   `json:"collectorState"`
	CompletionRatio float64  `json:"completionRatio"`
	SelectedTrack   string   `json:"selectedTrack,omitempty"`
	NextField       string   `json:"nextField,omitempty"`
	ExtractedFields []string `json:"extractedFields,omitempty"`
	Sufficient      bool     `json:"sufficient"`
}
