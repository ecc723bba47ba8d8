// Package planner turns profiles and ad-hoc changes into ordered helper
// mutations.
package planner

import (
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/internal/profile"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

// bootCPU can never be taken offline.
const bootCPU = 0

// Topology is the read-only view the planner consults.
type Topology interface {
	Available() []int
	ScalingRange(cpu int) sysfs.FrequencyRange
	EnergyPreferenceSupported(cpu int) bool
}

// ForProfile plans p. CPUs the machine does not offer are skipped. For
// every other CPU the online state comes first, and an offline CPU gets no
// further operations.
func ForProfile(p profile.Profile, topo Topology) []types.Mutation {
	logger := log.With().Str("component", "planner").Logger()
	available := topo.Available()

	var ops []types.Mutation
	for _, e := range p.Entries {
		if !slices.Contains(available, e.CPU) {
			logger.Warn().Str("profile", p.Name).Int("cpu", e.CPU).Msg("profile references a CPU that does not exist")
			continue
		}

		if e.CPU != bootCPU {
			if !e.Online {
				ops = append(ops, types.SetOffline{CPU: e.CPU})
				continue
			}
			ops = append(ops, types.SetOnline{CPU: e.CPU})
		}
		if e.MinKHz > 0 && e.MaxKHz > 0 {
			ops = append(ops, types.UpdateSettings{CPU: e.CPU, Min: e.MinKHz, Max: e.MaxKHz})
		}
		if e.Governor != "" {
			ops = append(ops, types.UpdateGovernor{CPU: e.CPU, Governor: e.Governor})
		}
		if e.EnergyPreference != "" && topo.EnergyPreferenceSupported(e.CPU) {
			ops = append(ops, types.UpdateEnergyPreference{CPU: e.CPU, Preference: e.EnergyPreference})
		}
	}
	return ops
}

// Change is an ad-hoc edit. Zero values leave the setting untouched.
type Change struct {
	MinKHz           int
	MaxKHz           int
	Governor         string
	EnergyPreference string
	Online           *bool
}

// Empty reports whether c changes nothing.
func (c Change) Empty() bool {
	return c.MinKHz <= 0 && c.MaxKHz <= 0 && c.Governor == "" && c.EnergyPreference == "" && c.Online == nil
}

// ForChange plans c for each of cpus. A single frequency bound is paired
// with the CPU's current other bound, moved to meet it when the two would
// cross. The online state is applied last and
// never to the boot CPU.
func ForChange(cpus []int, c Change, topo Topology) []types.Mutation {
	var ops []types.Mutation
	for _, cpu := range cpus {
		if c.MinKHz > 0 || c.MaxKHz > 0 {
			current := topo.ScalingRange(cpu)
			minKHz, maxKHz := c.MinKHz, c.MaxKHz
			if minKHz <= 0 {
				minKHz = min(current.MinKHz, maxKHz)
			}
			if maxKHz <= 0 {
				maxKHz = max(current.MaxKHz, minKHz)
			}
			ops = append(ops, types.UpdateSettings{CPU: cpu, Min: minKHz, Max: maxKHz})
		}
		if c.Governor != "" {
			ops = append(ops, types.UpdateGovernor{CPU: cpu, Governor: c.Governor})
		}
		if c.EnergyPreference != "" && topo.EnergyPreferenceSupported(cpu) {
			ops = append(ops, types.UpdateEnergyPreference{CPU: cpu, Preference: c.EnergyPreference})
		}
		if c.Online != nil && cpu != bootCPU {
			if *c.Online {
				ops = append(ops, types.SetOnline{CPU: cpu})
			} else {
				ops = append(ops, types.SetOffline{CPU: cpu})
			}
		}
	}
	return ops
}

// Capture records the current state of cpus as profile entries, for saving
// the running configuration as a profile.
func Capture(r *sysfs.Reader, cpus []int) []profile.Entry {
	entries := make([]profile.Entry, 0, len(cpus))
	for _, cpu := range cpus {
		state := r.Snapshot(cpu)
		entries = append(entries, profile.Entry{
			CPU:              cpu,
			MinKHz:           state.Scaling.MinKHz,
			MaxKHz:           state.Scaling.MaxKHz,
			Governor:         state.Governor,
			Online:           state.Online,
			EnergyPreference: state.EnergyPreference,
		})
	}
	return entries
}
