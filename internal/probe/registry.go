package probe

import "dissonance/internal/model"

// Defaults builds the full probe registry from configuration. Each probe is
// an independently constructed instance; nothing here is a singleton, and
// the caller hands the slice to the runner explicitly.
func Defaults(cfg *model.Config) []Probe {
	return []Probe{
		NewDNSProbe(cfg.DNS),
		NewCensusProbe(),
		NewTimeDriftProbe(cfg.Time),
		NewSIPProbe(),
		NewKextProbe(),
		NewAllowlistProbe(cfg.Allowlist),
	}
}
