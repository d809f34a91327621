package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/resend/resend-go/v2"
)

type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

// SendNotificationEmail mails a copy of an in-app notification.
func (s *EmailService) SendNotificationEmail(ctx context.Context, email string, n *model.Notification) error {
	goalURL := fmt.Sprintf("%s/goals/%s", s.appURL, n.GoalID)
	subject, body := notificationEmailTemplate(n.Title, n.Message, goalURL, s.appName)

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", n.Type, "to", email, "subject", subject, "url", goalURL)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{email},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err == nil {
		slog.Info("email sent", "type", n.Type, "to", email)
	}
	return err
}
