package sensor

import (
	"errors"
	"testing"
	"testing/quick"
)

// ladder mirrors a common device size list.
var ladder = []Size{
	{640, 480},
	{1280, 720},
	{1920, 1080},
	{2592, 1944},
	{3280, 2464},
	{3840, 2160},
}

// TestNegotiate covers the strategy fallback orders.
func TestNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		want     Size
		strategy Strategy
		expect   Size
		wantErr  bool
	}{
		{
			name:     "exact match closest-higher",
			want:     Size{3840, 2160},
			strategy: ClosestHigherThenLower,
			expect:   Size{3840, 2160},
		},
		{
			name:     "closest-higher picks smallest above",
			want:     Size{3000, 2000},
			strategy: ClosestHigherThenLower,
			expect:   Size{3280, 2464},
		},
		{
			name:     "closest-higher falls back to largest below",
			want:     Size{8000, 6000},
			strategy: ClosestHigherThenLower,
			expect:   Size{3840, 2160},
		},
		{
			name:     "closest-lower picks largest below",
			want:     Size{3000, 2000},
			strategy: ClosestLowerThenHigher,
			expect:   Size{2592, 1944},
		},
		{
			name:     "closest-lower falls back to smallest above",
			want:     Size{100, 100},
			strategy: ClosestLowerThenHigher,
			expect:   Size{640, 480},
		},
		{
			name:     "exact hit",
			want:     Size{1920, 1080},
			strategy: ExactOrError,
			expect:   Size{1920, 1080},
		},
		{
			name:     "exact miss errors",
			want:     Size{1921, 1080},
			strategy: ExactOrError,
			wantErr:  true,
		},
		{
			name:     "largest ignores request",
			want:     Size{640, 480},
			strategy: Largest,
			expect:   Size{3840, 2160},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Negotiate(ladder, tt.want, tt.strategy)
			if tt.wantErr {
				if !errors.Is(err, ErrNoResolution) {
					t.Fatalf("Expected ErrNoResolution, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate failed: %v", err)
			}
			if got != tt.expect {
				t.Errorf("Negotiate(%s, %s) = %s, want %s", tt.want, tt.strategy, got, tt.expect)
			}
		})
	}
}

// TestNegotiateEmptyList verifies the empty-list edge.
func TestNegotiateEmptyList(t *testing.T) {
	if _, err := Negotiate(nil, Size{1920, 1080}, ClosestHigherThenLower); !errors.Is(err, ErrNoResolution) {
		t.Errorf("Expected ErrNoResolution for empty list, got %v", err)
	}
}

// TestNegotiateTieBreak verifies equal areas resolve by aspect then width.
func TestNegotiateTieBreak(t *testing.T) {
	// Both sizes have identical area; the 16:9 request should pick 16:9.
	supported := []Size{{1620, 1280}, {1920, 1080}}

	got, err := Negotiate(supported, Size{1920, 1080}, Largest)
	if err != nil {
		t.Fatalf("Negotiate failed: %v", err)
	}
	if got != (Size{1920, 1080}) {
		t.Errorf("Expected aspect tie-break toward 1920x1080, got %s", got)
	}
}

// TestNegotiate_Property1_ResultFromList tests membership.
//
// Property: Every non-error result is a member of the supported list.
func TestNegotiate_Property1_ResultFromList(t *testing.T) {
	f := func(w, h uint16, strat uint8) bool {
		want := Size{int(w)%4000 + 1, int(h)%4000 + 1}
		strategy := Strategy(int(strat) % 4)

		got, err := Negotiate(ladder, want, strategy)
		if err != nil {
			// Only ExactOrError may fail against a non-empty list
			if strategy != ExactOrError {
				t.Logf("FAIL: unexpected error %v with want=%s strategy=%s", err, want, strategy)
				return false
			}
			return true
		}

		for _, s := range ladder {
			if s == got {
				return true
			}
		}
		t.Logf("FAIL: result %s not in supported list (want=%s strategy=%s)", got, want, strategy)
		return false
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestNegotiate_Property2_HigherPreference tests the primary direction.
//
// Property: Under ClosestHigherThenLower, when any supported size has
// area >= the request, the result does too.
func TestNegotiate_Property2_HigherPreference(t *testing.T) {
	f := func(w, h uint16) bool {
		want := Size{int(w)%4000 + 1, int(h)%4000 + 1}

		anyAbove := false
		for _, s := range ladder {
			if s.Area() >= want.Area() {
				anyAbove = true
				break
			}
		}

		got, err := Negotiate(ladder, want, ClosestHigherThenLower)
		if err != nil {
			t.Logf("FAIL: unexpected error %v with want=%s", err, want)
			return false
		}

		if anyAbove && got.Area() < want.Area() {
			t.Logf("FAIL: picked %s below request %s despite larger sizes", got, want)
			return false
		}
		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Errorf("Property violated: %v", err)
	}
}

// TestParseStrategy verifies configuration names round-trip.
func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Strategy
		wantErr bool
	}{
		{name: "closest-higher", in: "closest-higher", want: ClosestHigherThenLower},
		{name: "empty defaults to closest-higher", in: "", want: ClosestHigherThenLower},
		{name: "closest-lower", in: "closest-lower", want: ClosestLowerThenHigher},
		{name: "exact", in: "exact", want: ExactOrError},
		{name: "largest", in: "largest", want: Largest},
		{name: "unknown rejected", in: "best-effort", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStrategy failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
