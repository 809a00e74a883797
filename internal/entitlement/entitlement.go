// Package entitlement maps a plan tier to the limits and feature locks a
// user gets. Everything here is pure; the payments flag is passed in by the
// caller.
package entitlement

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Plan is a named entitlement level.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanPremium      Plan = "premium"
	PlanProfessional Plan = "professional"
)

// Unbounded marks a limit with no effective ceiling.
const Unbounded = math.MaxInt32

// ParsePlan normalizes a stored plan name. Unknown names return ok=false.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanFree:
		return PlanFree, true
	case PlanPremium:
		return PlanPremium, true
	case PlanProfessional:
		return PlanProfessional, true
	}
	return PlanFree, false
}

// Snapshot is the derived, never persisted view of what a user may do.
type Snapshot struct {
	Plan                Plan
	DailyLimit          int
	MaxResolutionHeight int
	SubtitleLocked      bool
	BurnInAllowed       bool
	PaymentsEnabled     bool
}

type tier struct {
	dailyLimit    int
	maxHeight     int
	subtitleLock  bool
	burnInAllowed bool
}

var tiers = map[Plan]tier{
	PlanFree:         {dailyLimit: 3, maxHeight: 480, subtitleLock: true},
	PlanPremium:      {dailyLimit: 20, maxHeight: 1080},
	PlanProfessional: {dailyLimit: 999, maxHeight: Unbounded, burnInAllowed: true},
}

// DailyLimit returns the plan's download cap regardless of the payments flag.
func DailyLimit(plan Plan) int {
	return tierFor(plan).dailyLimit
}

// Resolve computes the snapshot for a plan. With payments disabled every
// plan is unbounded and nothing is locked.
func Resolve(plan Plan, paymentsEnabled bool) Snapshot {
	if !paymentsEnabled {
		return Snapshot{
			Plan:                plan,
			DailyLimit:          Unbounded,
			MaxResolutionHeight: Unbounded,
			SubtitleLocked:      false,
			BurnInAllowed:       true,
			PaymentsEnabled:     false,
		}
	}

	t := tierFor(plan)
	return Snapshot{
		Plan:                plan,
		DailyLimit:          t.dailyLimit,
		MaxResolutionHeight: t.maxHeight,
		SubtitleLocked:      t.subtitleLock,
		BurnInAllowed:       t.burnInAllowed,
		PaymentsEnabled:     true,
	}
}

func tierFor(plan Plan) tier {
	if t, ok := tiers[plan]; ok {
		return t
	}
	return tiers[PlanFree]
}

// CapResolution clamps a requested height to the snapshot ceiling and
// reports whether that lowered it.
func CapResolution(s Snapshot, requested int) (effective int, wasDowngraded bool) {
	if requested > s.MaxResolutionHeight {
		return s.MaxResolutionHeight, true
	}
	return requested, false
}

// Selectable reports whether a quality option may be chosen for a download.
func Selectable(s Snapshot, height int) bool {
	return height <= s.MaxResolutionHeight
}

// QualityOption is one row of the quality menu.
type QualityOption struct {
	Label  string
	Height int
	Locked bool
}

// ListAvailableQualities turns the extractor-reported heights into menu
// options, highest first. Options above the cap are kept but marked locked.
func ListAvailableQualities(heights []int, s Snapshot) []QualityOption {
	seen := make(map[int]bool, len(heights))
	options := make([]QualityOption, 0, len(heights))
	for _, h := range heights {
		if h <= 0 || seen[h] {
			continue
		}
		seen[h] = true
		options = append(options, QualityOption{
			Label:  fmt.Sprintf("%dp", h),
			Height: h,
			Locked: !Selectable(s, h),
		})
	}

	sort.Slice(options, func(i, j int) bool {
		return options[i].Height > options[j].Height
	})
	return options
}

// IsUnbounded reports whether a limit carries no ceiling.
func IsUnbounded(limit int) bool {
	return limit >= Unbounded
}
