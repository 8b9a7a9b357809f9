package model

import (
	"fmt"
	"math"
	"strings"
)

// ResourceKind is the closed set of resource counters tracked by a base.
type ResourceKind string

const (
	Credits   ResourceKind = "credits"
	Biomass   ResourceKind = "biomass"
	Nanosteel ResourceKind = "nanosteel"
	Gems      ResourceKind = "gems"
)

// AllResources returns every resource kind in display order.
func AllResources() []ResourceKind {
	return []ResourceKind{Credits, Biomass, Nanosteel, Gems}
}

// CappedResources are the kinds limited by storage capacity. Gems are not.
func CappedResources() []ResourceKind {
	return []ResourceKind{Credits, Biomass, Nanosteel}
}

func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case Credits:
		return Credits, nil
	case Biomass:
		return Biomass, nil
	case Nanosteel:
		return Nanosteel, nil
	case Gems:
		return Gems, nil
	default:
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
}

func (k ResourceKind) Valid() bool {
	_, err := ParseResourceKind(string(k))
	return err == nil
}

// ResourceSet holds one amount per resource kind. Amounts may carry a fractional part while
// production accumulates between ticks; costs and rates are always whole numbers.
type ResourceSet struct {
	Credits   float64 `json:"credits"`
	Biomass   float64 `json:"biomass"`
	Nanosteel float64 `json:"nanosteel"`
	Gems      float64 `json:"gems"`
}

func (r ResourceSet) Get(k ResourceKind) float64 {
	switch k {
	case Credits:
		return r.Credits
	case Biomass:
		return r.Biomass
	case Nanosteel:
		return r.Nanosteel
	case Gems:
		return r.Gems
	default:
		panic(fmt.Sprintf("model: unhandled resource kind %q", k))
	}
}

func (r *ResourceSet) Set(k ResourceKind, v float64) {
	switch k {
	case Credits:
		r.Credits = v
	case Biomass:
		r.Biomass = v
	case Nanosteel:
		r.Nanosteel = v
	case Gems:
		r.Gems = v
	default:
		panic(fmt.Sprintf("model: unhandled resource kind %q", k))
	}
}

// Add returns the per-kind sum.
func (r ResourceSet) Add(o ResourceSet) ResourceSet {
	return ResourceSet{
		Credits:   r.Credits + o.Credits,
		Biomass:   r.Biomass + o.Biomass,
		Nanosteel: r.Nanosteel + o.Nanosteel,
		Gems:      r.Gems + o.Gems,
	}
}

// Scale multiplies every amount by f.
func (r ResourceSet) Scale(f float64) ResourceSet {
	return ResourceSet{
		Credits:   r.Credits * f,
		Biomass:   r.Biomass * f,
		Nanosteel: r.Nanosteel * f,
		Gems:      r.Gems * f,
	}
}

// Floor rounds every amount down to a whole number.
func (r ResourceSet) Floor() ResourceSet {
	return ResourceSet{
		Credits:   math.Floor(r.Credits),
		Biomass:   math.Floor(r.Biomass),
		Nanosteel: math.Floor(r.Nanosteel),
		Gems:      math.Floor(r.Gems),
	}
}

func (r ResourceSet) CanAfford(cost ResourceSet) bool {
	for _, k := range AllResources() {
		if r.Get(k) < cost.Get(k) {
			return false
		}
	}
	return true
}

// Sub deducts cost. It refuses (ok=false, r unchanged) when any counter would go negative.
func (r ResourceSet) Sub(cost ResourceSet) (out ResourceSet, ok bool) {
	if !r.CanAfford(cost) {
		return r, false
	}
	return ResourceSet{
		Credits:   r.Credits - cost.Credits,
		Biomass:   r.Biomass - cost.Biomass,
		Nanosteel: r.Nanosteel - cost.Nanosteel,
		Gems:      r.Gems - cost.Gems,
	}, true
}

func (r ResourceSet) IsZero() bool {
	return r == ResourceSet{}
}

// Caps is the storage capacity per capped resource kind. Gems have no cap.
type Caps struct {
	Credits   float64 `json:"credits" yaml:"credits"`
	Biomass   float64 `json:"biomass" yaml:"biomass"`
	Nanosteel float64 `json:"nanosteel" yaml:"nanosteel"`
}

// Limit returns the cap for k; ok is false for uncapped kinds.
func (c Caps) Limit(k ResourceKind) (limit float64, ok bool) {
	switch k {
	case Credits:
		return c.Credits, true
	case Biomass:
		return c.Biomass, true
	case Nanosteel:
		return c.Nanosteel, true
	case Gems:
		return math.Inf(1), false
	default:
		panic(fmt.Sprintf("model: unhandled resource kind %q", k))
	}
}

// Raise adds extra capacity to kind k. Raising an uncapped kind is a no-op.
func (c *Caps) Raise(k ResourceKind, extra float64) {
	switch k {
	case Credits:
		c.Credits += extra
	case Biomass:
		c.Biomass += extra
	case Nanosteel:
		c.Nanosteel += extra
	case Gems:
	default:
		panic(fmt.Sprintf("model: unhandled resource kind %q", k))
	}
}
