// Package notify tells a user their drafts are ready. Email via SES, SMS via
// SNS for users who registered a phone number. Notification failure never
// fails the drafting flow; callers log and move on.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"grantpilot-workers/internal/common/errors"
	"grantpilot-workers/internal/common/logger"
	"grantpilot-workers/internal/common/validation"
)

// SESService and SNSService mirror the AWS client methods used, for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Options struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
}

type Notifier struct {
	ses    SESService
	sns    SNSService
	opts   Options
	logger logger.Logger
}

func New(sesClient SESService, snsClient SNSService, opts Options, log logger.Logger) *Notifier {
	return &Notifier{ses: sesClient, sns: snsClient, opts: opts, logger: log}
}

// DraftsReady is the payload for the completion notification.
type DraftsReady struct {
	SessionID         string
	AnnouncementTitle string
	DraftCount        int
	FailedStyles      []string
	Email             string
	Phone             string
}

// Status values reported back to the workflow.
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

// SendDraftsReady notifies the user over every enabled channel they have a
// valid address for. It reports sent when at least one channel succeeded.
func (n *Notifier) SendDraftsReady(ctx context.Context, ready DraftsReady) (string, error) {
	subject := "Your application drafts are ready"
	body := fmt.Sprintf(
		"Good news! %d draft(s) for %q are ready for your review. Open your session to read them and request revisions.",
		ready.DraftCount, ready.AnnouncementTitle)
	if len(ready.FailedStyles) > 0 {
		body += fmt.Sprintf(" (The %s style(s) could not be generated this pass.)",
			strings.Join(ready.FailedStyles, ", "))
	}

	emailSent := false
	smsSent := false
	var lastErr error

	if n.opts.EmailEnabled && validation.ValidateEmail(ready.Email) {
		if err := n.sendEmail(ctx, ready.Email, subject, body); err != nil {
			lastErr = err
			n.logger.Error("drafts-ready email failed", map[string]interface{}{
				"sessionId": ready.SessionID,
				"error":     err.Error(),
			})
		} else {
			emailSent = true
		}
	}

	if n.opts.SMSEnabled && validation.ValidatePhone(ready.Phone) {
		if err := n.sendSMS(ctx, ready.Phone, body); err != nil {
			lastErr = err
			n.logger.Error("drafts-ready SMS failed", map[string]interface{}{
				"sessionId": ready.SessionID,
				"error":     err.Error(),
			})
		} else {
			smsSent = true
		}
	}

	if emailSent || smsSent {
		return StatusSent, nil
	}
	if lastErr != nil {
		return StatusFailed, errors.NewNotificationSendFailedError("email/sms", lastErr)
	}
	return StatusDisabled, nil
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.opts.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.sns.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
