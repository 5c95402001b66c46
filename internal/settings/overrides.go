package settings

import "panehub/internal/capability"

// ToCapabilityOverrides projects the settings document's injection
// capability tables into capability.Overrides.
func (s Settings) ToCapabilityOverrides() capability.Overrides {
	return capability.Overrides{
		ByPane:    s.InjectionCapabilities.Panes,
		ByRuntime: s.InjectionCapabilities.Runtimes,
	}
}
