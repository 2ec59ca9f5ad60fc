package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/models"
)

func newSessionFixture() *models.Session {
	profile := models.NewCompanyProfile()
	profile.Set(models.FieldCompanyName, "Acme Robotics", "turn-1")
	return &models.Session{
		ID:             "sess-1",
		UserID:         "user-1",
		AnnouncementID: "ann-1",
		Source:         models.SourceKStartup,
		Tier:           models.TierStandard,
		Phase:          models.PhaseProfileCollection,
		CollectorState: models.CollectorCollecting,
		Profile:        profile,
		Transcript: []models.Turn{
			{ID: "turn-1", Role: models.TurnRoleUser, Content: "We are Acme Robotics."},
		},
		RevisionAllotment: 3,
	}
}

func TestSessionStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO drafting_sessions").
		WithArgs("sess-1", "user-1", "ann-1", models.SourceKStartup,
			models.TierStandard, false, models.PhaseProfileCollection,
			models.CollectorCollecting, "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewSessionStore(db)
	err = store.Create(context.Background(), newSessionFixture())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	profileJSON := []byte(`{"fields": {"company_name": {"value": "Acme Robotics", "turnId": "turn-1"}}}`)
	transcriptJSON := []byte(`[{"id": "turn-1", "role": "user", "content": "We are Acme Robotics.", "createdAt": "2026-01-02T10:00:00Z"}]`)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "announcement_id", "source", "tier",
		"payment_confirmed", "phase", "collector_state", "selected_track",
		"profile", "transcript", "revision_allotment", "created_at", "updated_at",
	}).AddRow("sess-1", "user-1", "ann-1", "kstartup", "standard", true,
		"PROFILE_COLLECTION", "COLLECTING", "", profileJSON, transcriptJSON,
		3, now, now)

	mock.ExpectQuery("SELECT (.+) FROM drafting_sessions").
		WithArgs("sess-1").
		WillReturnRows(rows)

	store := NewSessionStore(db)
	session, err := store.FindByID(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, models.PhaseProfileCollection, session.Phase)
	assert.Equal(t, models.CollectorCollecting, session.CollectorState)
	assert.True(t, session.PaymentConfirmed)
	assert.Equal(t, "Acme Robotics", session.Profile.Get(models.FieldCompanyName))
	require.Len(t, session.Transcript, 1)
	assert.Equal(t, models.TurnRoleUser, session.Transcript[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM drafting_sessions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewSessionStore(db)
	_, err = store.FindByID(context.Background(), "missing")
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Update(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE drafting_sessions").
		WithArgs("sess-1", models.TierStandard, false,
			models.PhaseProfileCollection, models.CollectorCollecting, "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewSessionStore(db)
	err = store.Update(context.Background(), newSessionFixture())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStore_Update_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE drafting_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewSessionStore(db)
	err = store.Update(context.Background(), newSessionFixture())
	assert.Equal(t, errors.ErrCodeSessionNotFound, errors.CodeOf(err))
}

func TestSessionStore_FindActiveByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "announcement_id", "source", "phase", "created_at", "updated_at",
	}).
		AddRow("sess-2", "user-1", "ann-2", models.SourceBizinfo, models.PhaseFeedback, now, now).
		AddRow("sess-1", "user-1", "ann-1", models.SourceKStartup, models.PhaseProfileCollection, now, now)

	mock.ExpectQuery("SELECT (.+) FROM drafting_sessions").
		WithArgs("user-1", models.PhaseFinalized).
		WillReturnRows(rows)

	store := NewSessionStore(db)
	sessions, err := store.FindActiveByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-2", sessions[0].ID)
	assert.Equal(t, models.PhaseFeedback, sessions[0].Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}
