package enums

import "fmt"

// FunnelStage tracks how far a lead has moved through the funnel.
type FunnelStage string

const (
	FunnelStageNew       FunnelStage = "new"
	FunnelStageInContact FunnelStage = "in_contact"
	FunnelStagePurchased FunnelStage = "purchased"
	FunnelStageRejected  FunnelStage = "rejected"
)

var validFunnelStages = []FunnelStage{
	FunnelStageNew,
	FunnelStageInContact,
	FunnelStagePurchased,
	FunnelStageRejected,
}

// String implements fmt.Stringer.
func (f FunnelStage) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FunnelStage.
func (f FunnelStage) IsValid() bool {
	for _, candidate := range validFunnelStages {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFunnelStage converts raw input into a FunnelStage.
func ParseFunnelStage(value string) (FunnelStage, error) {
	for _, candidate := range validFunnelStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid funnel stage %q", value)
}
