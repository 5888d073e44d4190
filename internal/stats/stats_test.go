package stats

import "testing"

func TestReadMemory(t *testing.T) {
	m := ReadMemory()

	if m.ProcessRSSBytes == 0 {
		t.Error("Expected a non-zero RSS for the running test process")
	}
	if m.SystemUsedPercent < 0 || m.SystemUsedPercent > 100 {
		t.Errorf("Expected system usage within 0-100, got %f", m.SystemUsedPercent)
	}
}
