package quality

import "testing"

func TestEstimate(t *testing.T) {
	tests := []struct {
		peers     int
		connected bool
		want      Level
	}{
		{0, false, Offline},
		{0, true, Offline},
		{5, false, Offline}, // disconnected flag wins over stale peer count
		{-1, true, Offline},
		{1, true, Poor},
		{2, true, Poor},
		{3, true, Good},
		{4, true, Good},
		{5, true, Good},
		{6, true, Excellent},
		{7, true, Excellent},
		{100, true, Excellent},
	}
	for _, tt := range tests {
		if got := Estimate(tt.peers, tt.connected); got != tt.want {
			t.Errorf("Estimate(%d, %v) = %s, want %s", tt.peers, tt.connected, got, tt.want)
		}
	}
}
