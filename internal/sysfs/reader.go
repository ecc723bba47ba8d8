package sysfs

import (
	"slices"
	"strconv"
)

// FrequencyRange is a (min, max) pair in kHz.
type FrequencyRange struct {
	MinKHz int `json:"min"`
	MaxKHz int `json:"max"`
}

// Valid reports whether both bounds are positive and ordered.
func (r FrequencyRange) Valid() bool {
	return r.MinKHz > 0 && r.MaxKHz > 0 && r.MinKHz <= r.MaxKHz
}

// Contains reports whether other lies within r.
func (r FrequencyRange) Contains(other FrequencyRange) bool {
	return other.MinKHz >= r.MinKHz && other.MaxKHz <= r.MaxKHz
}

// CPUState is a point-in-time view of one CPU's scaling controls.
type CPUState struct {
	CPU                  int            `json:"cpu"`
	Online               bool           `json:"online"`
	AllowedOffline       bool           `json:"allowedOffline"`
	CurrentKHz           int            `json:"currentKHz"`
	Scaling              FrequencyRange `json:"scaling"`
	Hardware             FrequencyRange `json:"hardware"`
	AvailableFrequencies []int          `json:"availableFrequencies,omitempty"`
	Governor             string         `json:"governor"`
	Governors            []string       `json:"governors,omitempty"`
	EnergyPreference     string         `json:"energyPreference,omitempty"`
	EnergyPreferences    []string       `json:"energyPreferences,omitempty"`
}

// Reader answers read-only topology queries. Nothing is cached: every call
// re-reads the files because CPUs may change state between calls.
type Reader struct {
	*Accessor
}

// NewReader creates a reader over the given topology root.
func NewReader(root string) *Reader {
	return &Reader{Accessor: NewAccessor(root)}
}

// Present returns the CPUs enumerated by the topology.
func (r *Reader) Present() []int {
	return r.cpuList(FilePresent)
}

// Online returns the currently online CPUs.
func (r *Reader) Online() []int {
	return r.cpuList(FileOnline)
}

// Offline returns the currently offline CPUs.
func (r *Reader) Offline() []int {
	return r.cpuList(FileOffline)
}

// Available returns present CPUs that expose hardware limits and a governor
// list, i.e. CPUs a profile can meaningfully target.
func (r *Reader) Available() []int {
	present := r.Present()
	available := make([]int, 0, len(present))
	for _, cpu := range present {
		if r.Exists(r.CPUFreqPath(cpu, FileHardwareMin)) &&
			r.Exists(r.CPUFreqPath(cpu, FileHardwareMax)) &&
			r.Exists(r.CPUFreqPath(cpu, FileAvailableGovs)) {
			available = append(available, cpu)
		}
	}
	return available
}

// IsPresent reports whether cpu is in the present set.
func (r *Reader) IsPresent(cpu int) bool {
	return slices.Contains(r.Present(), cpu)
}

// IsOnline reports whether cpu is both present and online.
func (r *Reader) IsOnline(cpu int) bool {
	return r.IsPresent(cpu) && slices.Contains(r.Online(), cpu)
}

// ScalingRange returns the current scaling_min/max_freq, or zeros when the
// CPU is offline or absent.
func (r *Reader) ScalingRange(cpu int) FrequencyRange {
	if !r.IsOnline(cpu) {
		return FrequencyRange{}
	}
	return r.rangeOf(cpu, FileScalingMin, FileScalingMax)
}

// HardwareLimits returns cpuinfo_min/max_freq, or zeros when the CPU is
// offline or absent.
func (r *Reader) HardwareLimits(cpu int) FrequencyRange {
	if !r.IsOnline(cpu) {
		return FrequencyRange{}
	}
	return r.rangeOf(cpu, FileHardwareMin, FileHardwareMax)
}

// CurrentFrequency returns scaling_cur_freq in kHz, 0 when unknown.
func (r *Reader) CurrentFrequency(cpu int) int {
	if !r.IsOnline(cpu) {
		return 0
	}
	return atoi(r.ReadValue(r.CPUFreqPath(cpu, FileScalingCur)))
}

// AvailableFrequencies returns the discrete frequency steps, if the driver
// exposes them.
func (r *Reader) AvailableFrequencies(cpu int) []int {
	if !r.IsOnline(cpu) {
		return []int{}
	}
	steps := ParseWhitespaceList(r.ReadValue(r.CPUFreqPath(cpu, FileAvailableFreqs)))
	out := make([]int, 0, len(steps))
	for _, step := range steps {
		if v := atoi(step); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Governor returns the active governor, empty when offline or absent.
func (r *Reader) Governor(cpu int) string {
	if !r.IsOnline(cpu) {
		return ""
	}
	return r.ReadValue(r.CPUFreqPath(cpu, FileGovernor))
}

// AvailableGovernors returns the governors the CPU accepts.
func (r *Reader) AvailableGovernors(cpu int) []string {
	if !r.IsOnline(cpu) {
		return []string{}
	}
	return ParseWhitespaceList(r.ReadValue(r.CPUFreqPath(cpu, FileAvailableGovs)))
}

// EnergyPreference returns the active energy-performance preference.
func (r *Reader) EnergyPreference(cpu int) string {
	if !r.IsOnline(cpu) {
		return ""
	}
	return r.ReadValue(r.CPUFreqPath(cpu, FileEnergyPref))
}

// AvailableEnergyPreferences returns the preferences the CPU accepts.
func (r *Reader) AvailableEnergyPreferences(cpu int) []string {
	if !r.IsOnline(cpu) {
		return []string{}
	}
	return ParseWhitespaceList(r.ReadValue(r.CPUFreqPath(cpu, FileAvailableEnergy)))
}

// EnergyPreferenceSupported reports whether the driver exposes the
// energy-performance preference control for cpu.
func (r *Reader) EnergyPreferenceSupported(cpu int) bool {
	return r.Exists(r.CPUFreqPath(cpu, FileAvailableEnergy))
}

// AllowedOffline reports whether cpu has an online control file.
func (r *Reader) AllowedOffline(cpu int) bool {
	return r.Exists(r.CPUPath(cpu, FileOnline))
}

// Snapshot collects every readable attribute of cpu.
func (r *Reader) Snapshot(cpu int) CPUState {
	return CPUState{
		CPU:                  cpu,
		Online:               r.IsOnline(cpu),
		AllowedOffline:       r.AllowedOffline(cpu),
		CurrentKHz:           r.CurrentFrequency(cpu),
		Scaling:              r.ScalingRange(cpu),
		Hardware:             r.HardwareLimits(cpu),
		AvailableFrequencies: r.AvailableFrequencies(cpu),
		Governor:             r.Governor(cpu),
		Governors:            r.AvailableGovernors(cpu),
		EnergyPreference:     r.EnergyPreference(cpu),
		EnergyPreferences:    r.AvailableEnergyPreferences(cpu),
	}
}

func (r *Reader) rangeOf(cpu int, minFile, maxFile string) FrequencyRange {
	return FrequencyRange{
		MinKHz: atoi(r.ReadValue(r.CPUFreqPath(cpu, minFile))),
		MaxKHz: atoi(r.ReadValue(r.CPUFreqPath(cpu, maxFile))),
	}
}

func (r *Reader) cpuList(name string) []int {
	path := r.GlobalPath(name)
	cpus, err := ParseRangeList(r.ReadValue(path))
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("ignoring malformed cpu list")
	}
	return cpus
}

func atoi(value string) int {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return v
}
