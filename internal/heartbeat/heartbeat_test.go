package heartbeat

import (
	"testing"
	"time"
)

func TestScoreBands(t *testing.T) {
	timeout := 100 * time.Second
	cases := []struct {
		idle time.Duration
		want Health
	}{
		{0, Excellent},
		{20 * time.Second, Excellent},
		{30 * time.Second, Good},
		{60 * time.Second, Fair},
		{80 * time.Second, Poor},
		{100 * time.Second, VeryPoor},
		{200 * time.Second, VeryPoor},
	}
	for _, c := range cases {
		if got := Score(c.idle, timeout); got != c.want {
			t.Errorf("Score(%v, %v) = %v, want %v", c.idle, timeout, got, c.want)
		}
	}
}

func TestPathConfigDefaultsEnforceTimeoutFloor(t *testing.T) {
	cfg := PathConfig{Interval: 2 * time.Second, Timeout: time.Second}.withDefaults()
	if cfg.Timeout < 3*cfg.Interval {
		t.Fatalf("timeout %v below 3x interval %v", cfg.Timeout, cfg.Interval)
	}
}

func TestTrackerRecordActivityResetsIdle(t *testing.T) {
	base := time.Now()
	tr := NewTracker(PathConfig{Interval: time.Second, Timeout: 3 * time.Second}, base, nil)

	if tr.CheckTimeout(base.Add(4 * time.Second)) != true {
		t.Fatal("expected timeout after silence exceeding the configured window")
	}
	tr.RecordActivity(base.Add(4 * time.Second))
	if tr.CheckTimeout(base.Add(4500 * time.Millisecond)) {
		t.Fatal("expected no timeout shortly after fresh activity")
	}
}

func TestTrackerOnTimeoutFiresOncePerEpisode(t *testing.T) {
	base := time.Now()
	fired := 0
	tr := NewTracker(PathConfig{Interval: time.Second, Timeout: 3 * time.Second}, base, func() { fired++ })

	tr.CheckTimeout(base.Add(5 * time.Second))
	tr.CheckTimeout(base.Add(6 * time.Second))
	if fired != 1 {
		t.Fatalf("fired = %d, want 1 (no repeat callbacks within the same timeout episode)", fired)
	}

	tr.RecordActivity(base.Add(6 * time.Second))
	tr.CheckTimeout(base.Add(10 * time.Second))
	if fired != 2 {
		t.Fatalf("fired = %d, want 2 after a new timeout episode", fired)
	}
}

func TestDueForProbeRespectsInterval(t *testing.T) {
	base := time.Now()
	tr := NewTracker(PathConfig{Interval: time.Second}, base, nil)
	if !tr.DueForProbe(base) {
		t.Fatal("expected first probe to be due immediately")
	}
	if tr.DueForProbe(base.Add(500 * time.Millisecond)) {
		t.Fatal("expected no probe due before a full interval elapses")
	}
	if !tr.DueForProbe(base.Add(1100 * time.Millisecond)) {
		t.Fatal("expected probe due once the interval elapses")
	}
}
