package structure

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Type identifies a structure feature. A nil *Type is the null key a failed
// registry lookup produces.
type Type struct {
	Name string
}

func (t *Type) String() string {
	if t == nil {
		return "null"
	}
	return t.Name
}

// VanillaNames lists the structure ids a 1.16 world may reference.
var VanillaNames = []string{
	"pillager_outpost",
	"mineshaft",
	"mansion",
	"jungle_pyramid",
	"desert_pyramid",
	"igloo",
	"ruined_portal",
	"shipwreck",
	"swamp_hut",
	"stronghold",
	"monument",
	"ocean_ruin",
	"fortress",
	"endcity",
	"buried_treasure",
	"village",
	"nether_fossil",
	"bastion_remnant",
}

// Registry resolves structure names to their Type. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byName map[string]*Type
}

func NewRegistry(names ...string) *Registry {
	r := &Registry{byName: make(map[string]*Type, len(names))}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := r.byName[n]; ok {
			continue
		}
		r.byName[n] = &Type{Name: n}
	}
	return r
}

// DefaultRegistry holds VanillaNames plus any extra names (modded structures).
func DefaultRegistry(extra ...string) *Registry {
	return NewRegistry(append(append([]string{}, VanillaNames...), extra...)...)
}

// Lookup returns nil when name is not registered.
func (r *Registry) Lookup(name string) *Type {
	if r == nil {
		return nil
	}
	return r.byName[strings.ToLower(name)]
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := lo.Keys(r.byName)
	sort.Strings(names)
	return names
}
