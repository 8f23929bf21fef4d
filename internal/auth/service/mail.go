package service

import (
	"context"
	"fmt"
	"html"

	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/pkg/mailx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

func codeEmail(to, subject, intro, code, link string) mailx.Message {
	return mailx.Message{
		To:      to,
		Subject: subject,
		Text: fmt.Sprintf("%s\n\nHere's your verification code: %s\n\nOr click the link to get started:\n%s\n",
			intro, code, link),
		HTML: fmt.Sprintf(`<p>%s</p><p>Here's your verification code: <strong>%s</strong></p><p><a href="%s">%s</a></p>`,
			html.EscapeString(intro), html.EscapeString(code), html.EscapeString(link), html.EscapeString(link)),
	}
}

func onboardingEmail(to, code, link string) mailx.Message {
	return codeEmail(to, "Welcome to Epic Notes!", "Welcome to Epic Notes!", code, link)
}

func resetPasswordEmail(to, username, code, link string) mailx.Message {
	return codeEmail(to, "Epic Notes Password Reset",
		fmt.Sprintf("Epic Notes password reset for %s.", username), code, link)
}

func changeEmailEmail(to, code, link string) mailx.Message {
	return codeEmail(to, "Epic Notes Email Change Verification",
		"Please verify this is your new email address.", code, link)
}

func emailChangedNotice(to, newEmail string) mailx.Message {
	text := fmt.Sprintf("Your Epic Notes email has been changed to %s. If you did not make this change, contact support.", newEmail)
	return mailx.Message{
		To:      to,
		Subject: "Epic Notes email changed",
		Text:    text,
		HTML:    "<p>" + html.EscapeString(text) + "</p>",
	}
}

// send delivers msg once and maps failures to ErrEmailDelivery.
func send(ctx context.Context, sender mailx.Sender, m *metrics.Metrics, msg mailx.Message) error {
	err := sender.Send(ctx, msg)
	m.EmailSent(err)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		return fmt.Errorf("%w: %w", ErrEmailDelivery, err)
	}
	return nil
}
