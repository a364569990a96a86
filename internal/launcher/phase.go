package launcher

import "fmt"

// Phase is the step a run is executing.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSync
	PhaseSyncOutput
	PhaseConnect
	PhaseDiagnostics
	PhaseKillStale
	PhaseTest
	PhaseCleanup
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSync:
		return "sync"
	case PhaseSyncOutput:
		return "sync-output"
	case PhaseConnect:
		return "connect"
	case PhaseDiagnostics:
		return "diagnostics"
	case PhaseKillStale:
		return "kill-stale"
	case PhaseTest:
		return "test"
	case PhaseCleanup:
		return "cleanup"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// LoginState tracks the handshake that turns a fresh connection into a shell.
type LoginState int32

const (
	StateConnecting LoginState = iota
	StateConfirmFingerprint
	StateEnterPassword
	StateProbeLogin
	StateReady
)

func (s LoginState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConfirmFingerprint:
		return "confirm-fingerprint"
	case StateEnterPassword:
		return "enter-password"
	case StateProbeLogin:
		return "probe-login"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}
