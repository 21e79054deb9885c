// Package dropcatalog is the Drop-Point Catalog (spec §4.2): a static
// taxonomy mapping drop-site symbolic names onto a small, stable set of
// sFlow reason codes, with both exact and glob-pattern entries.
//
// Grounded on mod_dropmon.c's HSPDropPoint / UTHash+UTArray pair
// (dropPoints_sw/hw exact tables, dropPatterns_sw/hw pattern lists) and
// its getDropPoint_sw/hw lookup algorithm.
package dropcatalog

import (
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// DropPoint is one catalog entry: a symbol (or glob pattern) mapped to a
// reason code.
type DropPoint struct {
	Symbol    string
	IsPattern bool
	Reason    ReasonCode
}

// Catalog holds one namespace's (software or hardware) exact-match table
// and ordered pattern list. Entries only ever grow (spec §3: "no
// eviction, bounded by the kernel's finite symbol space").
type Catalog struct {
	exact    map[string]DropPoint
	patterns []DropPoint
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{exact: map[string]DropPoint{}}
}

// Add inserts dp into the exact table or the pattern list depending on
// dp.IsPattern.
func (c *Catalog) Add(dp DropPoint) {
	if dp.IsPattern {
		c.patterns = append(c.patterns, dp)
		return
	}
	c.exact[dp.Symbol] = dp
}

// Lookup implements spec §4.2's algorithm: exact hash lookup first; on
// miss, a linear scan of the pattern list (first match wins); on pattern
// hit, synthesize and insert an exact entry for amortized O(1) lookups
// on repeat symbols, then return it. A miss returns ok=false.
func (c *Catalog) Lookup(symbol string) (dp DropPoint, ok bool) {
	if dp, ok = c.exact[symbol]; ok {
		return dp, true
	}
	low := strings.ToLower(symbol)
	for _, pat := range c.patterns {
		matched, err := path.Match(strings.ToLower(pat.Symbol), low)
		if err != nil {
			// Malformed glob: treat as a non-match rather than aborting
			// the whole scan — other patterns may still be valid.
			continue
		}
		if !matched {
			continue
		}
		synthesized := DropPoint{Symbol: symbol, IsPattern: false, Reason: pat.Reason}
		c.exact[symbol] = synthesized
		return synthesized, true
	}
	return DropPoint{}, false
}

// TwoCatalogs bundles the independently-queried software and hardware
// namespaces plus their policy gates and "ignored" counters (spec §4.2).
type TwoCatalogs struct {
	SW, HW               *Catalog
	swEnabled, hwEnabled bool

	IgnoredSW, IgnoredHW uint64
}

// NewTwoCatalogs builds empty software/hardware catalogs gated by the
// given policy switches (spec §6 dropmon.sw / dropmon.hw).
func NewTwoCatalogs(swEnabled, hwEnabled bool) *TwoCatalogs {
	return &TwoCatalogs{
		SW:        NewCatalog(),
		HW:        NewCatalog(),
		swEnabled: swEnabled,
		hwEnabled: hwEnabled,
	}
}

// LookupSW looks up a software drop site; returns ok=false (and bumps
// IgnoredSW) if the sw namespace is policy-disabled.
func (t *TwoCatalogs) LookupSW(symbol string) (DropPoint, bool) {
	if !t.swEnabled {
		t.IgnoredSW++
		return DropPoint{}, false
	}
	return t.SW.Lookup(symbol)
}

// LookupHW looks up a hardware drop site by (group, name): exact lookup
// on name, then (if group given) exact lookup on group alone, then
// pattern scan on name (spec §4.2).
func (t *TwoCatalogs) LookupHW(group, name string) (DropPoint, bool) {
	if !t.hwEnabled {
		t.IgnoredHW++
		return DropPoint{}, false
	}
	if dp, ok := t.HW.exact[name]; ok {
		return dp, true
	}
	if group != "" {
		if dp, ok := t.HW.exact[group]; ok {
			return dp, true
		}
	}
	return t.HW.Lookup(name)
}

// LoaderEntry is one line of a static drop-point table: an operator
// ("==" exact, "*=" glob), the symbol/pattern, and a reason name (empty
// means "recognized and ignored").
type LoaderEntry struct {
	Op, Symbol, Reason string
}

// Load builds DropPoint entries from a static table, adding them to dst.
// Unknown operators and unresolved reason names cause the entry to be
// dropped with a logged warning, not a fatal error (spec §4.2, §7).
func Load(log logrus.FieldLogger, dst *Catalog, entries []LoaderEntry) {
	for _, e := range entries {
		var isPattern bool
		switch e.Op {
		case "==":
			isPattern = false
		case "*=":
			isPattern = true
		default:
			log.WithField("op", e.Op).Warn("dropcatalog: skipping entry with unknown operator")
			continue
		}
		reason, ok := lookupReason(e.Reason)
		if !ok {
			log.WithField("reason", e.Reason).Warn("dropcatalog: skipping entry with unresolved reason name")
			continue
		}
		dst.Add(DropPoint{Symbol: e.Symbol, IsPattern: isPattern, Reason: reason})
	}
}
