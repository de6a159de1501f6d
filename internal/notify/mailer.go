package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends invite emails through Amazon SES.
type SESMailer struct {
	client     SESAPI
	fromEmail  string
	fromName   string
	appBaseURL string
}

// NewSESMailer loads the default AWS configuration for region and returns a mailer.
func NewSESMailer(ctx context.Context, region, fromEmail, fromName, appBaseURL string) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESMailerWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL), nil
}

// NewSESMailerWithClient returns a mailer over an existing SES client.
func NewSESMailerWithClient(client SESAPI, fromEmail, fromName, appBaseURL string) *SESMailer {
	return &SESMailer{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
	}
}

// SendInvite implements Mailer.
func (m *SESMailer) SendInvite(ctx context.Context, email InviteEmail) error {
	subject, text, htmlBody := m.render(email)

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	_, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send invite: %w", err)
	}
	return nil
}

func (m *SESMailer) render(email InviteEmail) (subject, text, htmlBody string) {
	inviter := email.InviterName
	if inviter == "" {
		inviter = "A PetLink parent"
	}
	companion := email.CompanionName
	if companion == "" {
		companion = "their companion"
	}
	greeting := email.InviteeName
	if greeting == "" {
		greeting = "there"
	}

	link := fmt.Sprintf("%s/invites/accept?token=%s", m.appBaseURL, url.QueryEscape(email.Token))
	expiry := email.ExpiresAt.UTC().Format("January 2, 2006")

	subject = fmt.Sprintf("%s invited you to co-parent %s", inviter, companion)
	text = fmt.Sprintf(`Hi %s,

%s invited you to co-parent %s on PetLink.

Open the link below to accept or decline:
%s

This invite expires on %s.
`, greeting, inviter, companion, link, expiry)

	htmlBody = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<p>Hi %s,</p>
	<p>%s invited you to co-parent <strong>%s</strong> on PetLink.</p>
	<p><a href="%s">Accept or decline the invite</a></p>
	<p>This invite expires on %s.</p>
</body>
</html>
`, html.EscapeString(greeting), html.EscapeString(inviter), html.EscapeString(companion), html.EscapeString(link), expiry)

	return subject, text, htmlBody
}

// LogMailer records invites in the log instead of sending them. It is used
// when no sender address is configured.
type LogMailer struct {
	Logger *slog.Logger
}

// SendInvite implements Mailer.
func (m LogMailer) SendInvite(ctx context.Context, email InviteEmail) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "invite email skipped (mail sender not configured)",
		"to", email.To, "companion", email.CompanionName, "expiresAt", email.ExpiresAt)
	return nil
}

var (
	_ Mailer = (*SESMailer)(nil)
	_ Mailer = LogMailer{}
)
