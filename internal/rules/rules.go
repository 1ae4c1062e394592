package rules

import (
	"fmt"
	"sort"
)

// Effect is the adjustment a matched retraction range applies to zone
// selection.
type Effect string

const (
	// EffectShift adds points to the selected entry level.
	EffectShift Effect = "shift"
	// EffectSkip drops the first N zone levels before target selection.
	EffectSkip Effect = "skip"
	// EffectCancel disables the session for the day, unless a trade is
	// already open for it.
	EffectCancel Effect = "cancel"
)

// RetractionRule maps one inclusive [Min, Max] retraction range to an effect.
type RetractionRule struct {
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
	Effect Effect  `yaml:"effect" json:"effect"`
	Points float64 `yaml:"points,omitempty" json:"points,omitempty"`
	Levels int     `yaml:"levels,omitempty" json:"levels,omitempty"`
}

func (r RetractionRule) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Tables bundles the zone level sequence and the retraction rule set that
// drive entry evaluation.
type Tables struct {
	ZoneLevels []float64        `yaml:"zone_levels" json:"zone_levels"`
	Retraction []RetractionRule `yaml:"retraction" json:"retraction"`
}

// LastLevel is the furthest configured entry distance.
func (t Tables) LastLevel() float64 {
	if len(t.ZoneLevels) == 0 {
		return 0
	}
	return t.ZoneLevels[len(t.ZoneLevels)-1]
}

// Lookup returns the first retraction rule whose range contains v.
// Rules are kept in ascending Min order, so first match is the lowest range.
func (t Tables) Lookup(v float64) (RetractionRule, bool) {
	for _, rule := range t.Retraction {
		if rule.contains(v) {
			return rule, true
		}
	}
	return RetractionRule{}, false
}

// Validate enforces the structural invariants the evaluator depends on:
// ascending positive zone levels and ordered, disjoint retraction ranges.
func (t Tables) Validate() error {
	if len(t.ZoneLevels) == 0 {
		return fmt.Errorf("rules: zone_levels cannot be empty")
	}
	prev := 0.0
	for i, lvl := range t.ZoneLevels {
		if lvl <= prev {
			return fmt.Errorf("rules: zone_levels must be ascending and positive (index %d: %.1f)", i, lvl)
		}
		prev = lvl
	}
	if !sort.SliceIsSorted(t.Retraction, func(i, j int) bool {
		return t.Retraction[i].Min < t.Retraction[j].Min
	}) {
		return fmt.Errorf("rules: retraction ranges must be in ascending min order")
	}
	for i, rule := range t.Retraction {
		if rule.Max < rule.Min {
			return fmt.Errorf("rules: retraction[%d] has max < min", i)
		}
		if i > 0 && rule.Min <= t.Retraction[i-1].Max {
			return fmt.Errorf("rules: retraction[%d] overlaps previous range", i)
		}
		switch rule.Effect {
		case EffectShift:
			if rule.Points <= 0 {
				return fmt.Errorf("rules: retraction[%d] shift requires positive points", i)
			}
		case EffectSkip:
			if rule.Levels <= 0 || rule.Levels >= len(t.ZoneLevels) {
				return fmt.Errorf("rules: retraction[%d] skip levels must be in [1,%d)", i, len(t.ZoneLevels))
			}
		case EffectCancel:
		default:
			return fmt.Errorf("rules: retraction[%d] has unknown effect %q", i, rule.Effect)
		}
	}
	return nil
}

// Clone returns an independent copy so callers can hold a snapshot.
func (t Tables) Clone() Tables {
	out := Tables{
		ZoneLevels: append([]float64(nil), t.ZoneLevels...),
		Retraction: append([]RetractionRule(nil), t.Retraction...),
	}
	return out
}
