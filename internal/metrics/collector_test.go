package metrics

import (
	"testing"
	"time"
)

func TestCollector_CountsMessages(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 5; i++ {
		timer := c.StartTimer()
		c.EndTimer(timer)
	}

	snap := c.Metrics()
	if snap.TotalMessages != 5 {
		t.Errorf("TotalMessages = %d, want 5", snap.TotalMessages)
	}
	if snap.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0", snap.ErrorCount)
	}
}

func TestCollector_EndTimerReturnsMillis(t *testing.T) {
	c := NewCollector()

	timer := c.StartTimer()
	time.Sleep(20 * time.Millisecond)
	ms := c.EndTimer(timer)

	if ms < 20 {
		t.Errorf("EndTimer returned %.2fms, want >= 20ms", ms)
	}

	snap := c.Metrics()
	if snap.AverageLatency < 20*time.Millisecond {
		t.Errorf("AverageLatency = %v, want >= 20ms", snap.AverageLatency)
	}
}

func TestCollector_RecordError(t *testing.T) {
	c := NewCollector()

	c.RecordError()
	c.RecordError()

	if got := c.Metrics().ErrorCount; got != 2 {
		t.Errorf("ErrorCount = %d, want 2", got)
	}
}

func TestCollector_Throughput(t *testing.T) {
	c := NewCollector()

	timer := c.StartTimer()
	time.Sleep(50 * time.Millisecond)

	tput := c.Throughput(100, timer)
	if tput <= 0 {
		t.Errorf("Throughput = %.2f, want > 0", tput)
	}
	// 100 messages over at least 50ms can never exceed 2000/s.
	if tput > 2000 {
		t.Errorf("Throughput = %.2f, want <= 2000", tput)
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()

	timer := c.StartTimer()
	c.EndTimer(timer)
	c.RecordError()

	c.Reset()

	snap := c.Metrics()
	if snap.TotalMessages != 0 || snap.ErrorCount != 0 || snap.AverageLatency != 0 {
		t.Errorf("Metrics after Reset = %+v, want zeros", snap)
	}
}

func TestCollector_AverageLatencyEmpty(t *testing.T) {
	c := NewCollector()

	if got := c.Metrics().AverageLatency; got != 0 {
		t.Errorf("AverageLatency with no samples = %v, want 0", got)
	}
}
