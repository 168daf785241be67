package congestion

import (
	"testing"
	"time"
)

func TestInitialDefaults(t *testing.T) {
	c := New(Config{})
	if got := c.Cwnd(); got != 2 {
		t.Errorf("initial cwnd = %d, want 2", got)
	}
	if c.State() != SlowStart {
		t.Errorf("initial state = %v, want SlowStart", c.State())
	}
}

func TestSlowStartGrowthAndTransition(t *testing.T) {
	c := New(Config{CwndInit: 2, SsthreshInit: 4})
	c.OnAckReceived(1)
	if c.Cwnd() != 3 || c.State() != SlowStart {
		t.Fatalf("after 1 ack: cwnd=%d state=%v", c.Cwnd(), c.State())
	}
	c.OnAckReceived(1)
	if c.Cwnd() != 4 {
		t.Fatalf("cwnd = %d, want 4", c.Cwnd())
	}
	if c.State() != CongestionAvoidance {
		t.Fatalf("expected transition to CongestionAvoidance once cwnd >= ssthresh, got %v", c.State())
	}
}

func TestTimeoutScenarioS4(t *testing.T) {
	// S4 — Timeout -> SlowStart: cwnd=40, ssthresh=40 in CongestionAvoidance.
	c := New(Config{CwndInit: 40, SsthreshInit: 4, RTOMin: 100 * time.Millisecond, RTOMax: 60 * time.Second})
	c.OnAckReceived(1) // push into CongestionAvoidance
	// Force the state/cwnd/ssthresh to the scenario's literal starting point.
	c.mu.Lock()
	c.state = CongestionAvoidance
	c.cwnd = 40
	c.ssthresh = 40
	c.rto = 1 * time.Second
	c.mu.Unlock()

	c.OnTimeout()

	snap := c.Snapshot()
	if snap.Ssthresh != 20 {
		t.Errorf("ssthresh = %d, want 20", snap.Ssthresh)
	}
	if snap.Cwnd != 1 {
		t.Errorf("cwnd = %d, want 1", snap.Cwnd)
	}
	if snap.State != SlowStart {
		t.Errorf("state = %v, want SlowStart", snap.State)
	}
	if snap.RTO != 2*time.Second {
		t.Errorf("rto = %v, want 2s (doubled)", snap.RTO)
	}
}

func TestRTOCapsAtMax(t *testing.T) {
	c := New(Config{RTOMax: 1 * time.Second})
	c.mu.Lock()
	c.rto = 900 * time.Millisecond
	c.mu.Unlock()
	c.OnTimeout()
	if c.RTO() != 1*time.Second {
		t.Errorf("rto = %v, want capped at 1s", c.RTO())
	}
}

func TestPacketLossEntersFastRecovery(t *testing.T) {
	c := New(Config{CwndInit: 20})
	c.OnPacketLoss(500)
	snap := c.Snapshot()
	if snap.State != FastRecovery {
		t.Fatalf("state = %v, want FastRecovery", snap.State)
	}
	if snap.Ssthresh != 10 {
		t.Errorf("ssthresh = %d, want 10", snap.Ssthresh)
	}
	if snap.Cwnd != 13 {
		t.Errorf("cwnd = %d, want 13 (ssthresh+3)", snap.Cwnd)
	}
}

func TestFastRecoveryExitsOnCoveredAck(t *testing.T) {
	c := New(Config{})
	c.OnPacketLoss(100)
	c.ExitRecoveryIfCovered(50) // hasn't reached recovery point yet
	if c.State() != FastRecovery {
		t.Fatalf("state = %v, want still FastRecovery", c.State())
	}
	c.ExitRecoveryIfCovered(100)
	if c.State() != CongestionAvoidance {
		t.Fatalf("state = %v, want CongestionAvoidance", c.State())
	}
}

func TestCwndNeverExceedsBounds(t *testing.T) {
	c := New(Config{CwndMin: 1, CwndMax: 10})
	for i := 0; i < 100; i++ {
		c.OnAckReceived(5)
	}
	if got := c.Cwnd(); got > 10 {
		t.Errorf("cwnd = %d, exceeds max 10", got)
	}
	c.OnTimeout()
	if got := c.Cwnd(); got < 1 {
		t.Errorf("cwnd = %d, below min 1", got)
	}
}

func TestUpdateRTTProducesBoundedRTO(t *testing.T) {
	c := New(Config{RTOMin: 200 * time.Millisecond, RTOMax: 60 * time.Second})
	c.UpdateRTT(50 * time.Millisecond)
	if c.RTO() < 200*time.Millisecond {
		t.Errorf("rto = %v, below floor", c.RTO())
	}
	c.UpdateRTT(5 * time.Second)
	if c.RTO() > 60*time.Second {
		t.Errorf("rto = %v, above ceiling", c.RTO())
	}
}

func TestDuplicateAckThresholdTriggersLoss(t *testing.T) {
	c := New(Config{DupAckThreshold: 3})
	if c.OnDuplicateAck(10) || c.OnDuplicateAck(10) {
		t.Fatal("should not trigger loss before reaching threshold")
	}
	if !c.OnDuplicateAck(10) {
		t.Fatal("expected loss signal on 3rd duplicate ack")
	}
	if c.State() != FastRecovery {
		t.Errorf("state = %v, want FastRecovery", c.State())
	}
}
