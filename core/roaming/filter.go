package roaming

import (
	"strings"

	"github.com/kilianp07/roamsync/core/model"
)

// EVSEFilter decides whether an EVSE takes part in synchronization.
type EVSEFilter func(evse *model.EVSE) bool

// IncludeAll accepts every EVSE.
func IncludeAll(*model.EVSE) bool { return true }

// IncludeOperators accepts EVSEs whose operator is one of ops.
func IncludeOperators(ops ...string) EVSEFilter {
	set := make(map[string]struct{}, len(ops))
	for _, o := range ops {
		set[strings.ToUpper(o)] = struct{}{}
	}
	return func(e *model.EVSE) bool {
		_, ok := set[strings.ToUpper(e.Operator())]
		return ok
	}
}

// IncludePrefixes accepts EVSEs whose id starts with one of prefixes.
func IncludePrefixes(prefixes ...string) EVSEFilter {
	return func(e *model.EVSE) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(string(e.ID), p) {
				return true
			}
		}
		return false
	}
}

// ExcludeEVSEs rejects the listed EVSEs.
func ExcludeEVSEs(ids ...model.EVSEID) EVSEFilter {
	set := make(map[model.EVSEID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(e *model.EVSE) bool {
		_, excluded := set[e.ID]
		return !excluded
	}
}

// AllOf accepts an EVSE only if every non-nil filter accepts it.
func AllOf(filters ...EVSEFilter) EVSEFilter {
	var active []EVSEFilter
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	switch len(active) {
	case 0:
		return IncludeAll
	case 1:
		return active[0]
	}
	return func(e *model.EVSE) bool {
		for _, f := range active {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// FilterConfig is the declarative form of an EVSEFilter.
type FilterConfig struct {
	IncludeOperators []string `json:"include_operators" yaml:"include_operators"`
	IncludePrefixes  []string `json:"include_prefixes" yaml:"include_prefixes"`
	ExcludeEVSEs     []string `json:"exclude_evses" yaml:"exclude_evses"`
}

// Build returns the filter described by the configuration, or nil when the
// configuration is empty.
func (c FilterConfig) Build() EVSEFilter {
	var fs []EVSEFilter
	if len(c.IncludeOperators) > 0 {
		fs = append(fs, IncludeOperators(c.IncludeOperators...))
	}
	if len(c.IncludePrefixes) > 0 {
		fs = append(fs, IncludePrefixes(c.IncludePrefixes...))
	}
	if len(c.ExcludeEVSEs) > 0 {
		ids := make([]model.EVSEID, len(c.ExcludeEVSEs))
		for i, id := range c.ExcludeEVSEs {
			ids[i] = model.EVSEID(id)
		}
		fs = append(fs, ExcludeEVSEs(ids...))
	}
	if len(fs) == 0 {
		return nil
	}
	return AllOf(fs...)
}
