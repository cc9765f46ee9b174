// Package flags reads the feature switches in the `flags` config section.
// A registry never changes after New; anything not configured is off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/lanes/internal/log"
)

const (
	// FlagASCIIGraph draws the commit graph with plain ASCII glyphs.
	FlagASCIIGraph = "ascii-graph"

	// FlagShowStashes lists stash entries under the commit details.
	FlagShowStashes = "show-stashes"
)

// Known lists every flag lanes reads.
var Known = []string{FlagASCIIGraph, FlagShowStashes}

// Registry is the set of configured flags. A nil *Registry has every flag off.
type Registry struct {
	flags map[string]bool
}

// New builds a registry from the config section. nil means no flags.
func New(configured map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(configured))}
	maps.Copy(r.flags, configured)
	log.Debug(log.CatConfig, "feature flags loaded", "count", len(r.flags), "flags", r.flags)
	return r
}

// Enabled reports whether name is configured and true.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	on, ok := r.flags[name]
	if !ok {
		log.Debug(log.CatConfig, "flag not configured", "flag", name)
	}
	return on
}

// All returns a copy of the configured flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Unknown returns the configured flag names lanes never reads, sorted.
// These are usually typos in the config file.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	var names []string
	for name := range r.flags {
		if !slices.Contains(Known, name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
