package model

import (
	"time"
)

const (
	NotificationDepositConfirmed = "deposit_confirmed"
	NotificationGoalCompleted    = "goal_completed"
)

type Notification struct {
	ID        string     `db:"id"`
	OwnerID   string     `db:"owner_id"`
	GoalID    string     `db:"goal_id"`
	Type      string     `db:"type"`
	Title     string     `db:"title"`
	Message   string     `db:"message"`
	ReadAt    *time.Time `db:"read_at"`
	CreatedAt time.Time  `db:"created_at"`
}

func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
