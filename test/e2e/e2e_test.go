// test/e2e/e2e_test.go
//
// Full drafting lifecycle against real PostgreSQL and Redis. The model
// service is scripted so runs are deterministic and free. Gated behind
// E2E_TESTS=1; `go test ./test/e2e` is a no-op otherwise.
package e2e

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpilot-workers/internal/analyzer"
	"grantpilot-workers/internal/collector"
	"grantpilot-workers/internal/common/config"
	"grantpilot-workers/internal/common/database"
	"grantpilot-workers/internal/common/llm"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/composer"
	"grantpilot-workers/internal/ledger"
	"grantpilot-workers/internal/models"
	"grantpilot-workers/internal/revision"
	"grantpilot-workers/internal/session"
	"grantpilot-workers/internal/store"
)

func requireE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("E2E_TESTS") != "1" {
		t.Skip("set E2E_TESTS=1 to run against local PostgreSQL and Redis")
	}
}

func setupDatabase(t *testing.T, db *sql.DB) {
	t.Helper()
	queries := []string{
		`CREATE TABLE IF NOT EXISTS drafting_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			announcement_id TEXT NOT NULL,
			source TEXT NOT NULL,
			tier TEXT,
			payment_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			phase TEXT NOT NULL,
			collector_state TEXT,
			selected_track TEXT,
			profile JSONB,
			transcript JSONB,
			revision_allotment INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			style TEXT NOT NULL,
			rank INTEGER NOT NULL,
			is_recommended BOOLEAN NOT NULL DEFAULT FALSE,
			sections JSONB,
			plain_text TEXT,
			char_count INTEGER NOT NULL DEFAULT 0,
			model TEXT,
			revision_log JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (session_id, style)
		)`,
		`CREATE TABLE IF NOT EXISTS announcements (
			announcement_id TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT,
			full_text TEXT,
			target TEXT,
			scale TEXT,
			organization TEXT,
			PRIMARY KEY (announcement_id, source)
		)`,
		`CREATE TABLE IF NOT EXISTS credit_accounts (
			user_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, q := range queries {
		_, err := db.Exec(q)
		require.NoError(t, err)
	}
}

const analysisReply = `{
  "eligibility": "SMEs under 7 years old headquartered in Korea",
  "scoring_criteria": [
    {"name": "Business feasibility", "weight": 40},
    {"name": "Growth potential", "weight": 35},
    {"name": "Execution capability", "weight": 25}
  ],
  "keywords": ["digital transformation", "export", "scale-up"],
  "writing_strategy": "Lead with traction, quantify export readiness.",
  "tracks": [
    {"name": "General Track", "goal": "Broad SME growth support"}
  ]
}`

const extractionTurn1 = `{
  "fields": {"company_name": "Hanbit Robotics", "industry": "industrial robotics"},
  "reply": "Thanks! What year was Hanbit Robotics founded?",
  "next_field": "founding_year",
  "completion_percent": 40
}`

const extractionTurn2 = `{
  "fields": {"founding_year": "2019", "main_products": "cobot arms", "target_goal": "enter the EU market"},
  "reply": "Great, I have everything I need to start drafting.",
  "next_field": "",
  "completion_percent": 100
}`

const compositionReply = `{
  "sections": [
    {"title": "Company Overview", "content": "Hanbit Robotics builds collaborative robot arms for small factories."},
    {"title": "Growth Plan", "content": "With grant support we will certify our cobot line for the EU market."}
  ]
}`

const revisionReply = `{
  "sections": [
    {"title": "Company Overview", "content": "Hanbit Robotics, founded in 2019, builds collaborative robot arms."},
    {"title": "Growth Plan", "content": "Grant funding accelerates EU certification and first export deals."}
  ]
}`

func TestDraftingLifecycle(t *testing.T) {
	requireE2E(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, pg.Ping(ctx))

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx))

	setupDatabase(t, pg.DB)

	userID := "e2e-user-" + uuid.NewString()
	announcementID := "e2e-ann-" + uuid.NewString()

	_, err = pg.DB.Exec(`
		INSERT INTO announcements (announcement_id, source, title, summary, full_text)
		VALUES ($1, $2, $3, $4, $5)`,
		announcementID, models.SourceKStartup, "2026 SME Scale-Up Grant",
		"Growth funding for young SMEs", "Full announcement text for the scale-up grant.")
	require.NoError(t, err)

	_, err = pg.DB.Exec(`
		INSERT INTO credit_accounts (user_id, balance, updated_at)
		VALUES ($1, $2, $3)`, userID, int64(100000), time.Now())
	require.NoError(t, err)

	mock := llm.NewMockClient(
		llm.MockReply{Text: analysisReply},
		llm.MockReply{Text: extractionTurn1},
		llm.MockReply{Text: extractionTurn2},
		llm.MockReply{Text: compositionReply},
		llm.MockReply{Text: compositionReply},
		llm.MockReply{Text: compositionReply},
		llm.MockReply{Text: revisionReply},
	)

	log := logger.NewTestLogger(t)
	sessionStore := store.NewSessionStore(pg.DB)
	draftStore := store.NewDraftStore(pg.DB)
	announcementStore := store.NewAnnouncementStore(pg.DB)

	creditLedger := ledger.New(pg.DB, cfg.Drafting.Tiers, log)
	controller := session.NewController(sessionStore, log)
	announcementAnalyzer := analyzer.New(announcementStore, rdb.Client, mock, analyzer.Options{
		CacheTTL: time.Hour,
	}, log)
	profileCollector := collector.New(mock, collector.Options{}, log)

	stylesByTier := map[string][]string{}
	for name, tier := range cfg.Drafting.Tiers {
		stylesByTier[name] = tier.Styles
	}
	draftComposer := composer.New(mock, stylesByTier, composer.Options{}, log)
	revisionEngine := revision.New(mock, creditLedger, draftStore, revision.Options{}, log)

	// Tier selection and payment.
	sess, err := controller.Open(ctx, userID, announcementID, models.SourceKStartup)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseTierSelection, sess.Phase)

	sess, err = controller.SelectTier(ctx, sess.ID, models.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, models.PhasePaymentPending, sess.Phase)

	payment, err := creditLedger.ChargeForTier(ctx, userID, sess.ID, models.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, int64(29900), payment.Amount)

	balance, err := creditLedger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(70100), balance)

	sess, err = controller.ConfirmPayment(ctx, sess.ID, models.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseAnalyzing, sess.Phase)

	reloaded, err := sessionStore.FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.RevisionAllotment)

	// Analysis, cached on the second read.
	requirements, err := announcementAnalyzer.GetOrCompute(ctx, announcementID, models.SourceKStartup, false)
	require.NoError(t, err)
	assert.Len(t, requirements.Tracks, 1)

	callsAfterAnalysis := mock.CallCount()
	_, err = announcementAnalyzer.GetOrCompute(ctx, announcementID, models.SourceKStartup, false)
	require.NoError(t, err)
	assert.Equal(t, callsAfterAnalysis, mock.CallCount(), "second analysis should come from cache")

	cacheKey := fmt.Sprintf("reqprofile:%s:%s", models.SourceKStartup, announcementID)
	assert.Positive(t, rdb.Client.Exists(ctx, cacheKey).Val())

	// Profile collection: single track, two turns to sufficiency.
	sess, err = controller.Advance(ctx, sess.ID, models.PhaseProfileCollection)
	require.NoError(t, err)

	opening := profileCollector.Begin(sess, requirements)
	assert.Equal(t, models.CollectorCollecting, opening.State)
	require.NoError(t, sessionStore.Update(ctx, sess))

	turn, err := profileCollector.HandleTurn(ctx, sess, requirements,
		"We are Hanbit Robotics, an industrial robotics company.")
	require.NoError(t, err)
	assert.Equal(t, models.CollectorCollecting, turn.State)
	require.NoError(t, sessionStore.Update(ctx, sess))

	turn, err = profileCollector.HandleTurn(ctx, sess, requirements,
		"Founded 2019, we make cobot arms and want to enter the EU market.")
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSufficientForDraft, turn.State)
	require.NoError(t, sessionStore.Update(ctx, sess))

	// Composition fan-out for the standard tier.
	sess, err = controller.Advance(ctx, sess.ID, models.PhaseComposing)
	require.NoError(t, err)

	result, err := draftComposer.Compose(ctx, sess, requirements)
	require.NoError(t, err)
	require.Len(t, result.Drafts, 3)
	assert.Empty(t, result.Failures)
	for _, draft := range result.Drafts {
		require.NoError(t, draftStore.Create(ctx, draft))
	}

	sess, err = controller.Advance(ctx, sess.ID, models.PhaseFeedback)
	require.NoError(t, err)

	stored, err := draftStore.FindBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, 1, stored[0].Rank)
	assert.True(t, stored[0].IsRecommended)

	// One metered revision.
	revised, err := revisionEngine.RequestRevision(ctx, sess.ID, stored[0].Style, "Mention the founding year up front.")
	require.NoError(t, err)
	assert.Equal(t, 2, revised.RemainingAllotment)
	require.Len(t, revised.Draft.RevisionLog, 1)
	assert.Contains(t, revised.Draft.FullText(), "founded in 2019")

	// Finalize; the session becomes read-only.
	sess, err = controller.Finalize(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFinalized, sess.Phase)

	_, err = controller.SelectTier(ctx, sess.ID, models.TierPremium)
	require.Error(t, err)

	finalDrafts, err := draftStore.FindBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, finalDrafts, 3)
}
