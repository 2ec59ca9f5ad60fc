// internal/store/announcements.go
package store

import (
	"context"
	"database/sql"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/models"
)

// AnnouncementStore reads announcement records. The crawling pipeline that
// fills this table lives elsewhere; this side only does single-id lookups.
type AnnouncementStore struct {
	db *sql.DB
}

func NewAnnouncementStore(db *sql.DB) *AnnouncementStore {
	return &AnnouncementStore{db: db}
}

func (s *AnnouncementStore) Get(ctx context.Context, announcementID, source string) (*models.Announcement, error) {
	var (
		ann          models.Announcement
		summary      sql.NullString
		fullText     sql.NullString
		target       sql.NullString
		scale        sql.NullString
		organization sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT announcement_id, source, title, summary, full_text, target,
		       scale, organization
		FROM announcements
		WHERE announcement_id = $1 AND source = $2`, announcementID, source).Scan(
		&ann.AnnouncementID, &ann.Source, &ann.Title, &summary, &fullText,
		&target, &scale, &organization,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewAnnouncementNotFoundError(announcementID, source)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("select announcement", err)
	}

	ann.Summary = summary.String
	ann.FullText = fullText.String
	ann.Target = target.String
	ann.Scale = scale.String
	ann.Organization = organization.String
	return &ann, nil
}
