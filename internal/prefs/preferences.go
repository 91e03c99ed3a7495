// Package prefs exposes the application's fixed set of settings as typed,
// lazily cached properties over a key-value store.
//
// A Preferences value is constructed once per process and passed to whatever
// needs it. Writes go through to the store and may trigger a restart of the
// tunnel stack via the registered Callback.
package prefs

import (
	"log/slog"
	"sync"
)

// Preferences is the typed facade over the store. Every field is a Pref
// bound to one storage key.
type Preferences struct {
	store    Store
	log      *slog.Logger
	registry *Registry
	settings []Setting
	byName   map[string]Setting

	cbMu     sync.RWMutex
	callback Callback

	// Exclusions is the global list of apps excluded from every tunnel.
	Exclusions              *Pref[string]
	UseDarkTheme            *Pref[bool]
	ForceUserspaceBackend   *Pref[bool]
	WhitelistApps           *Pref[bool]
	AllowTaskerIntegration  *Pref[bool]
	TaskerIntegrationSecret *Pref[string]
	LastUsedTunnel          *Pref[string]
	RestoreOnBoot           *Pref[bool]
	// RunningTunnels holds the names of tunnels that were up, for restore on boot.
	RunningTunnels  *Pref[[]string]
	FingerprintAuth *Pref[bool]
}

// Option configures a Preferences.
type Option func(*Preferences)

// WithLogger sets the logger used for migration and dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preferences) { p.log = l }
}

// New imports legacy (once per store lifetime) and declares the settings.
// legacy may be nil when there is nothing to migrate from. The only error is
// a failure to record that the import ran.
func New(store Store, legacy LegacySource, opts ...Option) (*Preferences, error) {
	p := &Preferences{
		store:    store,
		log:      slog.Default(),
		registry: newRegistry(),
		byName:   make(map[string]Setting),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := importLegacy(store, legacy, p.log); err != nil {
		return nil, err
	}

	p.Exclusions = stringPref(p, "exclusions", "global_exclusions", "", RestartActiveSessions)
	p.UseDarkTheme = boolPref(p, "useDarkTheme", "dark_theme", false, NoSideEffect)
	p.ForceUserspaceBackend = boolPref(p, "forceUserspaceBackend", "force_userspace_backend", false, RestartApplication)
	p.WhitelistApps = boolPref(p, "whitelistApps", "whitelist_exclusions", false, RestartActiveSessions)
	p.AllowTaskerIntegration = boolPref(p, "allowTaskerIntegration", "allow_tasker_integration", false, NoSideEffect)
	p.TaskerIntegrationSecret = stringPref(p, "taskerIntegrationSecret", "intent_integration_secret", "", NoSideEffect)
	p.LastUsedTunnel = stringPref(p, "lastUsedTunnel", "last_used_tunnel", "", NoSideEffect)
	p.RestoreOnBoot = boolPref(p, "restoreOnBoot", "restore_on_boot", false, NoSideEffect)
	p.RunningTunnels = stringSetPref(p, "runningTunnels", "enabled_configs", nil, NoSideEffect)
	p.FingerprintAuth = boolPref(p, "fingerprintAuth", "fingerprint_auth", false, NoSideEffect)

	return p, nil
}

// ExclusionsList splits Exclusions into package names. It is recomputed from
// the cached string on every call.
func (p *Preferences) ExclusionsList() []string {
	return splitList(p.Exclusions.Get())
}

// RegisterCallback replaces the current callback.
func (p *Preferences) RegisterCallback(cb Callback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callback = cb
}

// UnregisterCallback clears the callback; later side effects are dropped.
func (p *Preferences) UnregisterCallback() {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callback = nil
}

// Notify tells the owning setting that key was changed outside of it. It
// returns false for keys no setting owns.
func (p *Preferences) Notify(key string) bool {
	return p.registry.Notify(key)
}

// Keys returns every storage key a setting owns.
func (p *Preferences) Keys() []string {
	return p.registry.Keys()
}

// Lookup returns the setting with the given name.
func (p *Preferences) Lookup(name string) (Setting, bool) {
	s, ok := p.byName[name]
	return s, ok
}

// Settings returns every setting in declaration order.
func (p *Preferences) Settings() []Setting {
	out := make([]Setting, len(p.settings))
	copy(out, p.settings)
	return out
}
