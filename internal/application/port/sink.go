package port

import "time"

// Sink receives the rendered report of each refresh pass.
type Sink interface {
	// WriteSnapshot writes one report line stamped with the pass time.
	WriteSnapshot(ts time.Time, line string) error
	// NewLine 结束当前输出块
	NewLine() error
}
