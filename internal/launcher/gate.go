package launcher

import "sync/atomic"

// OnceGate admits exactly one caller over its lifetime. Launchers sharing a
// gate share its one admission.
type OnceGate struct {
	used atomic.Bool
}

// First reports whether this is the first call.
func (g *OnceGate) First() bool {
	return g.used.CompareAndSwap(false, true)
}

var processGate OnceGate

// ProcessGate returns the gate shared by every launcher in this process.
// Launchers use it for first-run diagnostics unless given another gate.
func ProcessGate() *OnceGate {
	return &processGate
}
