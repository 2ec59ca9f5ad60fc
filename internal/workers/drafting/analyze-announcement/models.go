// internal/workers/drafting/analyze-announcement/models.go
package analyzeannouncement

type Input struct {
	SessionID      string `json:"sessionId"`
	AnnouncementID string `json:"announcementId"`
	Source         string `json:"source"`
	ForceRefresh   bool   `json:"forceRefresh,omitempty"`
}

type Output struct {
	SessionID      string   `json:"sessionId"`
	Phase          string   `json:"phase"`
	CollectorState string   `json:"collectorState"`
	TrackCount     int      `json:"trackCount"`
	Keywords       []string `json:"keywords"`
	OpeningMessage string   `json:"openingMessage"`
}
