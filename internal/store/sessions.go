// internal/store/sessions.go
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

// SessionStore persists drafting sessions. Profile and transcript are JSONB
// columns; everything else is flat.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	profileJSON, transcriptJSON, err := marshalSessionBlobs(session)
	if err != nil {
		return err
	}

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafting_sessions
			(id, user_id, announcement_id, source, tier, payment_confirmed,
			 phase, collector_state, selected_track, profile, transcript,
			 revision_allotment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		session.ID, session.UserID, session.AnnouncementID, session.Source,
		session.Tier, session.PaymentConfirmed, session.Phase,
		session.CollectorState, session.SelectedTrack, profileJSON,
		transcriptJSON, session.RevisionAllotment, session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("insert drafting session", err)
	}
	return nil
}

func (s *SessionStore) FindByID(ctx context.Context, sessionID string) (*models.Session, error) {
	var (
		session        models.Session
		tier           sql.NullString
		collectorState sql.NullString
		selectedTrack  sql.NullString
		profileJSON    []byte
		transcriptJSON []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, announcement_id, source, tier, payment_confirmed,
		       phase, collector_state, selected_track, profile, transcript,
		       revision_allotment, created_at, updated_at
		FROM drafting_sessions
		WHERE id = $1`, sessionID).Scan(
		&session.ID, &session.UserID, &session.AnnouncementID, &session.Source,
		&tier, &session.PaymentConfirmed, &session.Phase, &collectorState,
		&selectedTrack, &profileJSON, &transcriptJSON,
		&session.RevisionAllotment, &session.CreatedAt, &session.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("select drafting session", err)
	}

	session.Tier = tier.String
	session.CollectorState = models.CollectorState(collectorState.String)
	session.SelectedTrack = selectedTrack.String

	if len(profileJSON) > 0 {
		session.Profile = models.NewCompanyProfile()
		if err := json.Unmarshal(profileJSON, session.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile for session %s: %w", sessionID, err)
		}
	}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &session.Transcript); err != nil {
			return nil, fmt.Errorf("failed to decode transcript for session %s: %w", sessionID, err)
		}
	}
	return &session, nil
}

func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	profileJSON, transcriptJSON, err := marshalSessionBlobs(session)
	if err != nil {
		return err
	}
	session.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE drafting_sessions
		SET tier = $2, payment_confirmed = $3, phase = $4,
		    collector_state = $5, selected_track = $6, profile = $7,
		    transcript = $8, revision_allotment = $9, updated_at = $10
		WHERE id = $1`,
		session.ID, session.Tier, session.PaymentConfirmed, session.Phase,
		session.CollectorState, session.SelectedTrack, profileJSON,
		transcriptJSON, session.RevisionAllotment, session.UpdatedAt,
	)
	if err != nil {
		return errors.NewQueryExecutionFailedError("update drafting session", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewQueryExecutionFailedError("update drafting session", err)
	}
	if rows == 0 {
		return errors.NewSessionNotFoundError(session.ID)
	}
	return nil
}

func (s *SessionStore) FindActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, announcement_id, source, phase, created_at, updated_at
		FROM drafting_sessions
		WHERE user_id = $1 AND phase != $2
		ORDER BY updated_at DESC`, userID, models.PhaseFinalized)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("select active sessions", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.AnnouncementID,
			&session.Source, &session.Phase, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, errors.NewQueryExecutionFailedError("scan active session", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

func marshalSessionBlobs(session *models.Session) ([]byte, []byte, error) {
	profile := session.Profile
	if profile == nil {
		profile = models.NewCompanyProfile()
	}
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	transcript := session.Transcript
	if transcript == nil {
		transcript = []models.Turn{}
	}
	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return profileJSON, transcriptJSON, nil
}
