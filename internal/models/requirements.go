package models

import "time"

// TaskTrack is one of several alternative submission categories within a
// single announcement.
type TaskTrack struct {
	Name        string `json:"name"`
	Goal        string `json:"goal"`
	Description string `json:"description,omitempty"`
}

// ScoringCriterion is one evaluation axis with its weight, when the
// announcement discloses weights.
type ScoringCriterion struct {
	Name   string `json:"name"`
	Weight int    `json:"weight,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// RequirementsProfile is the structured interpretation of an announcement.
// Immutable once computed; cached keyed by (source, announcement id).
type RequirementsProfile struct {
	AnnouncementID  string             `json:"announcementId"`
	Source          string             `json:"source"`
	Eligibility     string             `json:"eligibility"`
	ScoringCriteria []ScoringCriterion `json:"scoringCriteria"`
	Keywords        []string           `json:"keywords"`
	WritingStrategy string             `json:"writingStrategy,omitempty"`
	Tracks          []TaskTrack        `json:"tracks,omitempty"`
	ComputedAt      time.Time          `json:"computedAt"`
}

// HasMultipleTracks reports whether track selection is required before
// profile collection starts.
func (rp *RequirementsProfile) HasMultipleTracks() bool {
	return rp != nil && len(rp.Tracks) >= 2
}

// TrackByName returns the track matching name exactly, nil if none.
func (rp *RequirementsProfile) TrackByName(name string) *TaskTrack {
	for i := range rp.Tracks {
		if rp.Tracks[i].Name == name {
			return &rp.Tracks[i]
		}
	}
	return nil
}

// Announcement is the read-only source record a session drafts against.
type Announcement struct {
	AnnouncementID string `json:"announcementId" db:"announcement_id"`
	Source         string `json:"source" db:"source"`
	Title          string `json:"title" db:"title"`
	Summary        string `json:"summary,omitempty" db:"summary"`
	FullText       string `json:"fullText,omitempty" db:"full_text"`
	Target         string `json:"target,omitempty" db:"target"`
	Scale          string `json:"scale,omitempty" db:"scale"`
	Organization   string `json:"organization,omitempty" db:"organization"`
}

const (
	SourceKStartup = "kstartup"
	SourceBizinfo  = "bizinfo"
)
