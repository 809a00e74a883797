package entitlement

import "testing"

func TestResolve_Table(t *testing.T) {
	tests := []struct {
		plan          Plan
		dailyLimit    int
		maxHeight     int
		subtitleLock  bool
		burnInAllowed bool
	}{
		{PlanFree, 3, 480, true, false},
		{PlanPremium, 20, 1080, false, false},
		{PlanProfessional, 999, Unbounded, false, true},
		{Plan("gold"), 3, 480, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			s := Resolve(tt.plan, true)
			if s.DailyLimit != tt.dailyLimit {
				t.Errorf("DailyLimit = %d, want %d", s.DailyLimit, tt.dailyLimit)
			}
			if s.MaxResolutionHeight != tt.maxHeight {
				t.Errorf("MaxResolutionHeight = %d, want %d", s.MaxResolutionHeight, tt.maxHeight)
			}
			if s.SubtitleLocked != tt.subtitleLock {
				t.Errorf("SubtitleLocked = %v, want %v", s.SubtitleLocked, tt.subtitleLock)
			}
			if s.BurnInAllowed != tt.burnInAllowed {
				t.Errorf("BurnInAllowed = %v, want %v", s.BurnInAllowed, tt.burnInAllowed)
			}
		})
	}
}

func TestResolve_PaymentsDisabledOverridesEveryPlan(t *testing.T) {
	for _, plan := range []Plan{PlanFree, PlanPremium, PlanProfessional} {
		s := Resolve(plan, false)
		if !IsUnbounded(s.DailyLimit) || !IsUnbounded(s.MaxResolutionHeight) {
			t.Errorf("%s: expected unbounded snapshot, got %+v", plan, s)
		}
		if s.SubtitleLocked {
			t.Errorf("%s: subtitles should not be locked", plan)
		}
	}
}

func TestCapResolution(t *testing.T) {
	tests := []struct {
		name           string
		maxHeight      int
		requested      int
		wantEffective  int
		wantDowngraded bool
	}{
		{"downgrades above cap", 480, 1080, 480, true},
		{"keeps request below cap", 1080, 480, 480, false},
		{"keeps request at cap", 1080, 1080, 1080, false},
		{"unbounded never downgrades", Unbounded, 2160, 2160, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, downgraded := CapResolution(Snapshot{MaxResolutionHeight: tt.maxHeight}, tt.requested)
			if got != tt.wantEffective || downgraded != tt.wantDowngraded {
				t.Errorf("CapResolution(%d, %d) = (%d, %v), want (%d, %v)",
					tt.maxHeight, tt.requested, got, downgraded, tt.wantEffective, tt.wantDowngraded)
			}
		})
	}
}

func TestListAvailableQualities(t *testing.T) {
	s := Resolve(PlanFree, true)
	options := ListAvailableQualities([]int{360, 1080, 720, 0, 480, 720}, s)

	wantHeights := []int{1080, 720, 480, 360}
	wantLocked := []bool{true, true, false, false}
	if len(options) != len(wantHeights) {
		t.Fatalf("expected %d options, got %d: %+v", len(wantHeights), len(options), options)
	}
	for i, opt := range options {
		if opt.Height != wantHeights[i] {
			t.Errorf("option %d height = %d, want %d", i, opt.Height, wantHeights[i])
		}
		if opt.Locked != wantLocked[i] {
			t.Errorf("option %d locked = %v, want %v", i, opt.Locked, wantLocked[i])
		}
	}
	if options[0].Label != "1080p" {
		t.Errorf("expected label 1080p, got %q", options[0].Label)
	}
}

func TestListAvailableQualities_ProfessionalTopIsExtractorMax(t *testing.T) {
	s := Resolve(PlanProfessional, true)
	options := ListAvailableQualities([]int{360, 720, 1080}, s)
	if len(options) == 0 || options[0].Height != 1080 || options[0].Locked {
		t.Fatalf("expected unlocked 1080 on top, got %+v", options)
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in     string
		want   Plan
		wantOK bool
	}{
		{"free", PlanFree, true},
		{"PREMIUM", PlanPremium, true},
		{" professional ", PlanProfessional, true},
		{"gold", PlanFree, false},
		{"", PlanFree, false},
	}
	for _, tt := range tests {
		got, ok := ParsePlan(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParsePlan(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
