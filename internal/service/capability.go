package service

import (
	"context"

	"github.com/nzoschke/dreamsaver/internal/model"
)

// Capabilities answers plan questions about an owner. Goal creation and exports consult it
// instead of reading plan state from globals.
type Capabilities interface {
	GoalLimit(ctx context.Context, owner model.Owner) int
	HasFeature(ctx context.Context, owner model.Owner, feature string) bool
}

// PlanCapabilities derives capabilities from the plan claim issued by the identity provider.
type PlanCapabilities struct{}

func NewPlanCapabilities() *PlanCapabilities {
	return &PlanCapabilities{}
}

func (c *PlanCapabilities) GoalLimit(ctx context.Context, owner model.Owner) int {
	return model.GoalLimit(owner.Plan)
}

func (c *PlanCapabilities) HasFeature(ctx context.Context, owner model.Owner, feature string) bool {
	return model.PlanHasFeature(owner.Plan, feature)
}
