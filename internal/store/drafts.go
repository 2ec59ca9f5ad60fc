// internal/store/drafts.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/models"
)

// DraftStore persists generated drafts. Sections and the revision log are
// JSONB columns.
type DraftStore struct {
	db *sql.DB
}

func NewDraftStore(db *sql.DB) *DraftStore {
	return &DraftStore{db: db}
}

// Create writes a draft for a (session, style) pair. A retried composition
// pass replaces the session's existing draft for the style instead of
// inserting a duplicate, so a session never holds more drafts than its tier
// has styles. The drafts table carries a unique constraint on
// (session_id, style) backing the upsert.
func (s *DraftStore) Create(ctx context.Context, draft *models.Draft) error {
	sectionsJSON, logJSON, err := marshalDraftBlobs(draft)
	if err != nil {
		return err
	}

	now := time.Now()
	draft.CreatedAt = now
	draft.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts
			(id, session_id, style, rank, is_recommended, sections, plain_text,
			 char_count, model, revision_log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id, style) DO UPDATE SET
			rank = EXCLUDED.rank,
			is_recommended = EXCLUDED.is_recommended,
			sections = EXCLUDED.sections,
			plain_text = EXCLUDED.plain_text,
			char_count = EXCLUDED.char_count,
			model = EXCLUDED.model,
			revision_log = EXCLUDED.revision_log,
			updated_at = EXCLUDED.updated_at`,
		draft.ID, draft.SessionID, draft.Style, draft.Rank,
		draft.IsRecommended, sectionsJSON, draft.PlainText, draft.CharCount,
		draft.Model, logJSON, draft.CreatedAt, draft.UpdatedAt,
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("upsert draft", err)
	}
	return nil
}

func (s *DraftStore) FindBySessionAndStyle(ctx context.Context, sessionID, style string) (*models.Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, style, rank, is_recommended, sections,
		       plain_text, char_count, model, revision_log, created_at, updated_at
		FROM drafts
		WHERE session_id = $1 AND style = $2`, sessionID, style)

	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewDraftNotFoundError(sessionID, style)
	}
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *DraftStore) FindBySession(ctx context.Context, sessionID string) ([]*models.Draft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, style, rank, is_recommended, sections,
		       plain_text, char_count, model, revision_log, created_at, updated_at
		FROM drafts
		WHERE session_id = $1
		ORDER BY rank ASC`, sessionID)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("select drafts", err)
	}
	defer rows.Close()

	var drafts []*models.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

func (s *DraftStore) Update(ctx context.Context, draft *models.Draft) error {
	sectionsJSON, logJSON, err := marshalDraftBlobs(draft)
	if err != nil {
		return err
	}
	draft.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET sections = $2, plain_text = $3, char_count = $4,
		    revision_log = $5, updated_at = $6
		WHERE id = $1`,
		draft.ID, sectionsJSON, draft.PlainText, draft.CharCount, logJSON,
		draft.UpdatedAt,
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("update draft", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("update draft", err)
	}
	if rows == 0 {
		return errors.NewDraftNotFoundError(draft.SessionID, draft.Style)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var (
		draft        models.Draft
		model        sql.NullString
		sectionsJSON []byte
		logJSON      []byte
	)
	err := row.Scan(&draft.ID, &draft.SessionID, &draft.Style, &draft.Rank,
		&draft.IsRecommended, &sectionsJSON, &draft.PlainText,
		&draft.CharCount, &model, &logJSON, &draft.CreatedAt, &draft.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("scan draft", err)
	}

	draft.Model = model.String
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &draft.Sections); err != nil {
			return nil, fmt.Errorf("failed to decode sections for draft %s: %w", draft.ID, err)
		}
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &draft.RevisionLog); err != nil {
			return nil, fmt.Errorf("failed to decode revision log for draft %s: %w", draft.ID, err)
		}
	}
	return &draft, nil
}

func marshalDraftBlobs(draft *models.Draft) ([]byte, []byte, error) {
	sections := draft.Sections
	if sections == nil {
		sections = []models.Section{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode sections: %w", err)
	}
	log := draft.RevisionLog
	if log == nil {
		log = []models.RevisionEntry{}
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode revision log: %w", err)
	}
	return sectionsJSON, logJSON, nil
}
