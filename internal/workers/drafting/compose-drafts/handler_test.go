package composedrafts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/composer"
	"grantpilot-workers/internal/models"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) GetOrCompute(_ context.Context, _, _ string, _ bool) (*models.RequirementsProfile, error) {
	return &models.RequirementsProfile{AnnouncementID: "ann-1"}, nil
}

type fakeSessions struct {
	session *models.Session
}

func (f *fakeSessions) Get(_ context.Context, _ string) (*models.Session, error) {
	return f.session, nil
}

func (f *fakeSessions) Advance(_ context.Context, _ string, to models.Phase) (*models.Session, error) {
	if to == models.PhaseComposing {
		if !f.session.PaymentConfirmed || f.session.CollectorState != models.CollectorSufficientForDraft {
			return nil, errors.NewSessionPhaseInvalidError(string(f.session.Phase), string(to))
		}
	}
	f.session.Phase = to
	return f.session, nil
}

type fakeComposer struct {
	result *composer.Result
	err    error
}

func (f *fakeComposer) Compose(_ context.Context, _ *models.Session, _ *models.RequirementsProfile) (*composer.Result, error) {
	return f.result, f.err
}

// fakeDrafts keys stored drafts by style the way the real store upserts on
// (session_id, style), so a rerun replaces rather than accumulates.
type fakeDrafts struct {
	created    []*models.Draft
	byStyle    map[string]*models.Draft
	calls      int
	failOnCall int
}

func (f *fakeDrafts) Create(_ context.Context, draft *models.Draft) error {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return errors.NewQueryExecutionFailedError("upsert draft", assert.AnError)
	}
	f.created = append(f.created, draft)
	if f.byStyle == nil {
		f.byStyle = map[string]*models.Draft{}
	}
	f.byStyle[draft.Style] = draft
	return nil
}

func sufficientSession() *models.Session {
	return &models.Session{
		ID:               "sess-1",
		Tier:             models.TierPremium,
		PaymentConfirmed: true,
		Phase:            models.PhaseProfileCollection,
		CollectorState:   models.CollectorSufficientForDraft,
		Profile:          models.NewCompanyProfile(),
	}
}

func draftFixture(style string, rank int) *models.Draft {
	return &models.Draft{
		ID: "draft-" + style, SessionID: "sess-1", Style: style, Rank: rank,
		IsRecommended: rank == 1, PlainText: "draft body", CharCount: 10,
	}
}

func newTestHandler(sessions SessionService, comp ComposerService, drafts DraftWriter) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, fakeAnalyzer{}, sessions, comp, drafts, logger.NewNoOpLogger())
}

// Partial failure: three of five styles produced drafts, the session still
// reaches Feedback with the failures recorded.
func TestExecute_PartialSuccessReachesFeedback(t *testing.T) {
	sessions := &fakeSessions{session: sufficientSession()}
	comp := &fakeComposer{result: &composer.Result{
		Drafts: []*models.Draft{
			draftFixture(models.StyleBalanced, 1),
			draftFixture(models.StyleData, 2),
			draftFixture(models.StyleStory, 3),
		},
		Failures: []composer.StyleFailure{
			{Style: models.StyleAggressive, Error: "timeout"},
			{Style: models.StyleConservative, Error: "timeout"},
		},
	}}
	drafts := &fakeDrafts{}
	h := newTestHandler(sessions, comp, drafts)

	output, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, string(models.PhaseFeedback), output.Phase)
	assert.Equal(t, 3, output.DraftCount)
	assert.Len(t, output.Failures, 2)
	assert.Equal(t, models.StyleBalanced, output.RecommendedStyle)
	assert.Len(t, drafts.created, 3)
}

// A pass interrupted while storing drafts is retried from Composing. The
// rerun must end with exactly one draft per style, not duplicates of the
// styles the first pass already stored.
func TestExecute_RetriedPassKeepsOneDraftPerStyle(t *testing.T) {
	session := sufficientSession()
	session.Tier = models.TierStandard
	sessions := &fakeSessions{session: session}
	comp := &fakeComposer{result: &composer.Result{
		Drafts: []*models.Draft{
			draftFixture(models.StyleBalanced, 1),
			draftFixture(models.StyleData, 2),
			draftFixture(models.StyleStory, 3),
		},
	}}
	drafts := &fakeDrafts{failOnCall: 3}
	h := newTestHandler(sessions, comp, drafts)

	_, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Equal(t, models.PhaseComposing, sessions.session.Phase)

	output, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	require.NoError(t, err)

	assert.Equal(t, 3, output.DraftCount)
	assert.Len(t, drafts.byStyle, 3)
	assert.Equal(t, string(models.PhaseFeedback), output.Phase)
}

// Full failure keeps the session in Composing and fails the job.
func TestExecute_FullFailureStaysInComposing(t *testing.T) {
	sessions := &fakeSessions{session: sufficientSession()}
	comp := &fakeComposer{err: errors.NewGenerationFailedError("all", nil)}
	h := newTestHandler(sessions, comp, &fakeDrafts{})

	_, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.CodeOf(err))
	assert.Equal(t, models.PhaseComposing, sessions.session.Phase)
}

func TestExecute_UnpaidSessionRejected(t *testing.T) {
	session := sufficientSession()
	session.PaymentConfirmed = false
	sessions := &fakeSessions{session: session}
	h := newTestHandler(sessions, &fakeComposer{}, &fakeDrafts{})

	_, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	assert.Equal(t, errors.ErrCodeSessionPhaseInvalid, errors.CodeOf(err))
}

func TestExecute_InsufficientProfileRejected(t *testing.T) {
	session := sufficientSession()
	session.CollectorState = models.CollectorCollecting
	sessions := &fakeSessions{session: session}
	h := newTestHandler(sessions, &fakeComposer{}, &fakeDrafts{})

	_, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	assert.Equal(t, errors.ErrCodeSessionPhaseInvalid, errors.CodeOf(err))
}

// A retried pass on a session already in Composing skips the phase guard
// re-entry and proceeds to generation.
func TestExecute_RetriedPassFromComposing(t *testing.T) {
	session := sufficientSession()
	session.Phase = models.PhaseComposing
	sessions := &fakeSessions{session: session}
	comp := &fakeComposer{result: &composer.Result{
		Drafts: []*models.Draft{draftFixture(models.StyleBalanced, 1)},
	}}
	h := newTestHandler(sessions, comp, &fakeDrafts{})

	output, err := h.execute(context.Background(), &Input{SessionID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, output.DraftCount)
	assert.Equal(t, string(models.PhaseFeedback), output.Phase)
}
