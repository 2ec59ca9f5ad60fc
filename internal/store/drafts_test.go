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

func TestDraftStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	draft := &models.Draft{
		ID:            "draft-1",
		SessionID:     "sess-1",
		Style:         models.StyleBalanced,
		Rank:          1,
		IsRecommended: true,
		Sections: []models.Section{
			{Title: "사업 개요", Content: "..."},
		},
		CharCount: 2500,
		Model:     "gpt-4o",
	}

	mock.ExpectExec(`INSERT INTO drafts(?s:.+)ON CONFLICT \(session_id, style\) DO UPDATE`).
		WithArgs("draft-1", "sess-1", models.StyleBalanced, 1, true,
			sqlmock.AnyArg(), "", 2500, "gpt-4o", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewDraftStore(db)
	err = store.Create(context.Background(), draft)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftStore_FindBySessionAndStyle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	sectionsJSON := []byte(`[{"title": "Overview", "content": "body"}]`)
	logJSON := []byte(`[{"requestedChange": "shorten", "priorContent": "a", "newContent": "b", "appliedAt": "2026-01-02T10:00:00Z"}]`)

	rows := sqlmock.NewRows([]string{
		"id", "session_id", "style", "rank", "is_recommended", "sections",
		"plain_text", "char_count", "model", "revision_log", "created_at", "updated_at",
	}).AddRow("draft-1", "sess-1", "data", 2, false, sectionsJSON, "", 2400,
		"gpt-4o", logJSON, now, now)

	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("sess-1", "data").
		WillReturnRows(rows)

	store := NewDraftStore(db)
	draft, err := store.FindBySessionAndStyle(context.Background(), "sess-1", "data")
	require.NoError(t, err)

	assert.Equal(t, models.StyleData, draft.Style)
	require.Len(t, draft.Sections, 1)
	assert.Equal(t, "Overview", draft.Sections[0].Title)
	require.Len(t, draft.RevisionLog, 1)
	assert.Equal(t, "shorten", draft.RevisionLog[0].RequestedChange)
}

func TestDraftStore_FindBySessionAndStyle_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("sess-1", "story").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewDraftStore(db)
	_, err = store.FindBySessionAndStyle(context.Background(), "sess-1", "story")
	assert.Equal(t, errors.ErrCodeDraftNotFound, errors.CodeOf(err))
}

func TestDraftStore_FindBySession_Ordering(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "style", "rank", "is_recommended", "sections",
		"plain_text", "char_count", "model", "revision_log", "created_at", "updated_at",
	}).
		AddRow("draft-1", "sess-1", "balanced", 1, true, []byte(`[]`), "text a", 6, "gpt-4o", []byte(`[]`), now, now).
		AddRow("draft-2", "sess-1", "data", 2, false, []byte(`[]`), "text b", 6, "gpt-4o", []byte(`[]`), now, now)

	mock.ExpectQuery("SELECT (.+) FROM drafts").
		WithArgs("sess-1").
		WillReturnRows(rows)

	store := NewDraftStore(db)
	drafts, err := store.FindBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.True(t, drafts[0].IsRecommended)
	assert.Equal(t, 1, drafts[0].Rank)
	assert.Equal(t, 2, drafts[1].Rank)
}

func TestDraftStore_Update_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE drafts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewDraftStore(db)
	err = store.Update(context.Background(), &models.Draft{ID: "draft-x", SessionID: "sess-1", Style: "data"})
	assert.Equal(t, errors.ErrCodeDraftNotFound, errors.CodeOf(err))
}
