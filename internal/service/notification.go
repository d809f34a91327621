package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nzoschke/dreamsaver/internal/model"
	"github.com/nzoschke/dreamsaver/internal/repository"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationService struct {
	repo     repository.NotificationRepository
	email    *EmailService
	printer  *message.Printer
	currency string
}

func NewNotificationService(repo repository.NotificationRepository, email *EmailService, currency string) *NotificationService {
	return &NotificationService{
		repo:     repo,
		email:    email,
		printer:  message.NewPrinter(language.English),
		currency: currency,
	}
}

// Notify stores the notification and mails a copy when an address is known.
// Failures are logged and never returned: the ledger write that triggered it stands.
func (s *NotificationService) Notify(ctx context.Context, n *model.Notification, email string) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	err := s.repo.Create(ctx, n)
	if err != nil {
		slog.Error("failed to create notification", "error", err, "owner_id", n.OwnerID, "goal_id", n.GoalID, "type", n.Type)
	}

	if email == "" || s.email == nil {
		return
	}

	err = s.email.SendNotificationEmail(ctx, email, n)
	if err != nil {
		slog.Error("failed to send notification email", "error", err, "owner_id", n.OwnerID, "goal_id", n.GoalID, "type", n.Type)
	}
}

// DepositConfirmed builds the notification for a recorded deposit.
func (s *NotificationService) DepositConfirmed(ownerID, goalID string, amount int64) *model.Notification {
	return &model.Notification{
		OwnerID: ownerID,
		GoalID:  goalID,
		Type:    model.NotificationDepositConfirmed,
		Title:   "Deposit Confirmed",
		Message: fmt.Sprintf("We received your deposit of %s toward your goal.", s.FormatAmount(amount)),
	}
}

// GoalCompleted builds the notification for the deposit that completed a goal.
func (s *NotificationService) GoalCompleted(ownerID, goalID string) *model.Notification {
	return &model.Notification{
		OwnerID: ownerID,
		GoalID:  goalID,
		Type:    model.NotificationGoalCompleted,
		Title:   "Goal Completed 🎉",
		Message: "Congratulations! Your savings goal is now complete.",
	}
}

// FormatAmount renders minor units as a grouped amount with a currency symbol, e.g. $1,250.00.
func (s *NotificationService) FormatAmount(cents int64) string {
	major := model.FromMinorUnits(cents).InexactFloat64()
	return model.CurrencySymbol(s.currency) + s.printer.Sprint(number.Decimal(major, number.Scale(2)))
}

func (s *NotificationService) Notifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	return s.repo.Notifications(ctx, ownerID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, ownerID, id string) error {
	return s.repo.MarkRead(ctx, ownerID, id, time.Now().UTC())
}
