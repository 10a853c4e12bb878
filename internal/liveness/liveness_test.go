package liveness

import (
	"testing"
	"time"
)

func TestClassify_Determinism(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	cases := []struct {
		name   string
		flag   Status
		age    time.Duration
		online bool
		away   bool
	}{
		{"online just inside window", StatusOnline, 4*time.Minute + 59*time.Second, true, false},
		{"online exactly at window", StatusOnline, 5 * time.Minute, true, false},
		{"online just past window", StatusOnline, 5*time.Minute + time.Second, false, false},
		{"online fresh", StatusOnline, 0, true, false},
		{"away fresh", StatusAway, time.Second, false, true},
		{"away stale", StatusAway, 6 * time.Minute, false, false},
		{"offline fresh", StatusOffline, time.Second, false, false},
		{"offline stale", StatusOffline, time.Hour, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.flag, now.Add(-tc.age), now, window)
			if got.Online != tc.online || got.Away != tc.away {
				t.Fatalf("Classify(%s, age=%s) = %+v, want online=%v away=%v",
					tc.flag, tc.age, got, tc.online, tc.away)
			}
		})
	}
}

func TestClassify_DefaultsWindowWhenUnset(t *testing.T) {
	now := time.Now()
	got := Classify(StatusOnline, now.Add(-4*time.Minute), now, 0)
	if !got.Online {
		t.Fatalf("4 minute old record should be online under the default window")
	}
	got = Classify(StatusOnline, now.Add(-6*time.Minute), now, 0)
	if got.Online {
		t.Fatalf("6 minute old record should be offline under the default window")
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusOnline, StatusAway, StatusOffline} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []Status{"", "busy", "ONLINE"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}
