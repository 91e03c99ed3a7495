package prefs

// SideEffect is the application-level reaction a setting change triggers.
type SideEffect int

const (
	NoSideEffect SideEffect = iota
	RestartApplication
	RestartActiveSessions
)

func (e SideEffect) String() string {
	switch e {
	case NoSideEffect:
		return "none"
	case RestartApplication:
		return "restart_application"
	case RestartActiveSessions:
		return "restart_active_sessions"
	default:
		return "unknown"
	}
}

// dispatch forwards effect to the registered callback. With no callback the
// effect is dropped.
func (p *Preferences) dispatch(effect SideEffect) {
	if effect == NoSideEffect {
		return
	}

	p.cbMu.RLock()
	cb := p.callback
	p.cbMu.RUnlock()

	if cb == nil {
		p.log.Debug("no preferences callback registered, dropping side effect", "effect", effect.String())
		return
	}

	switch effect {
	case RestartApplication:
		cb.Restart()
	case RestartActiveSessions:
		cb.RestartActiveSessions()
	}
}
