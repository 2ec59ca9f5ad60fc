// internal/workers/drafting/notify-drafts-ready/handler_test.go
package notifydraftsready

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/notify"
)

type fakeNotifier struct {
	status string
	err    error
	calls  []notify.DraftsReady
}

func (f *fakeNotifier) SendDraftsReady(_ context.Context, ready notify.DraftsReady) (string, error) {
	f.calls = append(f.calls, ready)
	if f.err != nil {
		return f.status, f.err
	}
	return f.status, nil
}

func newTestHandler(notifier NotifierService) *Handler {
	return NewHandler(LoadConfig(), notifier, logger.NewNoOpLogger())
}

func TestExecute_SendsNotification(t *testing.T) {
	notifier := &fakeNotifier{status: notify.StatusSent}
	h := newTestHandler(notifier)

	out, err := h.execute(context.Background(), &Input{
		SessionID:         "sess-1",
		Email:             "founder@acme.io",
		AnnouncementTitle: "2026 Startup Growth Grant",
		DraftCount:        3,
		FailedStyles:      []string{"story"},
	})
	require.NoError(t, err)

	require.Len(t, notifier.calls, 1)
	sent := notifier.calls[0]
	assert.Equal(t, "sess-1", sent.SessionID)
	assert.Equal(t, "founder@acme.io", sent.Email)
	assert.Equal(t, "2026 Startup Growth Grant", sent.AnnouncementTitle)
	assert.Equal(t, 3, sent.DraftCount)
	assert.Equal(t, []string{"story"}, sent.FailedStyles)

	assert.Equal(t, "sess-1", out.SessionID)
	assert.Equal(t, notify.StatusSent, out.Status)

	sentAt, parseErr := time.Parse(time.RFC3339, out.SentAt)
	require.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now().UTC(), sentAt, 5*time.Second)
}

func TestExecute_DisabledChannelsStillCompletes(t *testing.T) {
	notifier := &fakeNotifier{status: notify.StatusDisabled}
	h := newTestHandler(notifier)

	out, err := h.execute(context.Background(), &Input{SessionID: "sess-2"})
	require.NoError(t, err)
	assert.Equal(t, notify.StatusDisabled, out.Status)
}

func TestExecute_SendFailurePropagates(t *testing.T) {
	notifier := &fakeNotifier{
		status: notify.StatusFailed,
		err:    errors.NewNotificationSendFailedError("email/sms", assert.AnError),
	}
	h := newTestHandler(notifier)

	out, err := h.execute(context.Background(), &Input{SessionID: "sess-3", Email: "founder@acme.io"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, errors.ErrCodeNotificationSendFailed, errors.CodeOf(err))
}
