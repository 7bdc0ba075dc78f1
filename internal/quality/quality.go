// Package quality derives a coarse mesh-connectivity label from the
// connected peer count. The label is advisory: it feeds UI text and
// redundancy tuning, never whether a send is attempted.
package quality

// Level is a coarse connectivity classification.
type Level string

const (
	Offline   Level = "OFFLINE"
	Poor      Level = "POOR"
	Good      Level = "GOOD"
	Excellent Level = "EXCELLENT"
)

// Estimate maps the connected peer count to a Level. Total over all inputs.
func Estimate(peerCount int, connected bool) Level {
	if !connected || peerCount <= 0 {
		return Offline
	}
	switch {
	case peerCount <= 2:
		return Poor
	case peerCount <= 5:
		return Good
	default:
		return Excellent
	}
}
