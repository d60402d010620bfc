package mocks

import "github.com/zephh/chronobind/internal/ports"

// StaticDiscovery implements ports.Discovery with a fixed install list.
type StaticDiscovery struct {
	Result []ports.Install
	Err    error
}

func (d *StaticDiscovery) Installs() ([]ports.Install, error) {
	return d.Result, d.Err
}

// StaticAddonReader implements ports.AddonReader from a fixed map keyed by
// "Account/Realm/Name".
type StaticAddonReader struct {
	Classes map[string]string
	Levels  map[string]int
}

func (r *StaticAddonReader) Meta(characterKey string) (string, int, bool) {
	class, ok := r.Classes[characterKey]
	if !ok {
		return "", 0, false
	}
	return class, r.Levels[characterKey], true
}

// Compile-time interface checks.
var (
	_ ports.Discovery   = (*StaticDiscovery)(nil)
	_ ports.AddonReader = (*StaticAddonReader)(nil)
)
