package model

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

const (
	FeatureExport = "export"
)

// GoalLimit returns the maximum number of active goals allowed for a plan
// Returns -1 for unlimited
func GoalLimit(plan string) int {
	switch plan {
	case PlanPro:
		return 25
	case PlanEnterprise:
		return -1
	default:
		return 3 // Free tier default
	}
}

// PlanHasFeature checks if the plan has access to a specific feature
func PlanHasFeature(plan, feature string) bool {
	features := map[string][]string{
		PlanFree: {},
		PlanPro: {
			FeatureExport,
		},
		PlanEnterprise: {
			FeatureExport,
		},
	}

	planFeatures, exists := features[plan]
	if !exists {
		return false
	}

	for _, f := range planFeatures {
		if f == feature {
			return true
		}
	}

	return false
}
