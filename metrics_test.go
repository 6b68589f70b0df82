package edgebridge

import "testing"

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.CommandsReceived != 0 {
		t.Errorf("initial CommandsReceived = %d, want 0", snap.CommandsReceived)
	}

	m.RecordCommand(1_000_000, true)  // 1ms, ok
	m.RecordCommand(2_000_000, true)  // 2ms, ok
	m.RecordCommand(500_000, false)   // 0.5ms, error
	m.RecordResponse()
	m.RecordResponse()

	snap = m.Snapshot()
	if snap.CommandsReceived != 3 {
		t.Errorf("CommandsReceived = %d, want 3", snap.CommandsReceived)
	}
	if snap.ResponsesSent != 2 {
		t.Errorf("ResponsesSent = %d, want 2", snap.ResponsesSent)
	}
	if snap.Errors != 1 {
		t.Errorf("Errors = %d, want 1", snap.Errors)
	}

	wantErrorRate := 1.0 / 3.0 * 100.0
	if snap.ErrorRate < wantErrorRate-0.1 || snap.ErrorRate > wantErrorRate+0.1 {
		t.Errorf("ErrorRate = %.2f, want ~%.2f", snap.ErrorRate, wantErrorRate)
	}

	wantAvg := (1_000_000 + 2_000_000 + 500_000) / 3
	if snap.AvgLatencyNs != uint64(wantAvg) {
		t.Errorf("AvgLatencyNs = %d, want %d", snap.AvgLatencyNs, wantAvg)
	}
}

func TestMetricsPercentilesMonotonic(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 100; i++ {
		m.RecordCommand(uint64(i+1)*100_000, true)
	}

	snap := m.Snapshot()
	if snap.LatencyP50Ns > snap.LatencyP99Ns {
		t.Errorf("p50 (%d) > p99 (%d)", snap.LatencyP50Ns, snap.LatencyP99Ns)
	}
	if snap.LatencyP99Ns > snap.LatencyP999Ns {
		t.Errorf("p99 (%d) > p999 (%d)", snap.LatencyP99Ns, snap.LatencyP999Ns)
	}
}

func TestMetricsObserverDelegatesToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveCommand(1_000, true)
	obs.ObserveResponse()

	snap := m.Snapshot()
	if snap.CommandsReceived != 1 || snap.ResponsesSent != 1 {
		t.Errorf("snapshot after observer calls = %+v", snap)
	}
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.ObserveCommand(1_000, false)
	obs.ObserveResponse()
}
