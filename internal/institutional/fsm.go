package institutional

import (
	"time"

	"smc-enginev1/config"
)

// State is the per-symbol setup state. Transitions are strictly sequential
// within a symbol; there is no ordering dependency across symbols.
type State string

const (
	StateIdle           State = "IDLE"
	StateWaitFVG        State = "WAIT_FVG"
	StateWaitMitigation State = "WAIT_MITIGATION"
	StateWaitEntry      State = "WAIT_ENTRY"
	StateEntered        State = "ENTERED"
	StateCooldown       State = "COOLDOWN"
)

// stateTimeout returns how long a symbol may stay in a state before the setup
// is abandoned. ENTERED has no timeout: it ends on broker-confirmed close.
// IDLE never times out.
func stateTimeout(s State, cfg *config.Strategy) time.Duration {
	switch s {
	case StateWaitFVG:
		return time.Duration(cfg.WaitFVGMinutes) * time.Minute
	case StateWaitMitigation:
		return time.Duration(cfg.WaitMitigationMinutes) * time.Minute
	case StateWaitEntry:
		return time.Duration(cfg.WaitEntryMinutes) * time.Minute
	case StateCooldown:
		return time.Duration(cfg.CooldownMinutes) * time.Minute
	}
	return 0
}
