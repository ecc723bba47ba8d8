// Package sysfstest builds fake CPU topology trees for tests.
package sysfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// CPU describes one fake cpuN directory.
type CPU struct {
	// NoOnlineControl omits cpuN/online, as most kernels do for CPU 0.
	NoOnlineControl bool
	// NoEnergyPreference omits both energy-performance files.
	NoEnergyPreference bool

	ScalingMin        int
	ScalingMax        int
	HardwareMin       int
	HardwareMax       int
	Current           int
	Governor          string
	Governors         []string
	EnergyPreference  string
	EnergyPreferences []string
	Frequencies       []int
}

// DefaultCPU returns a CPU with a typical intel_pstate-like layout.
func DefaultCPU() CPU {
	return CPU{
		ScalingMin:        1000000,
		ScalingMax:        3000000,
		HardwareMin:       400000,
		HardwareMax:       4000000,
		Current:           2000000,
		Governor:          "powersave",
		Governors:         []string{"performance", "powersave"},
		EnergyPreference:  "balance_performance",
		EnergyPreferences: []string{"default", "performance", "balance_performance", "balance_power", "power"},
		Frequencies:       []int{400000, 1000000, 2000000, 3000000, 4000000},
	}
}

// Tree is a fake /sys/devices/system/cpu directory.
type Tree struct {
	t    testing.TB
	Root string
}

// New creates a tree with the given CPUs, all present and online.
func New(t testing.TB, cpus ...CPU) *Tree {
	t.Helper()

	tree := &Tree{t: t, Root: t.TempDir()}
	ids := make([]int, 0, len(cpus))
	for i, cpu := range cpus {
		tree.AddCPU(i, cpu)
		ids = append(ids, i)
	}
	tree.SetList("present", ids...)
	tree.SetList("online", ids...)
	tree.SetList("offline")
	return tree
}

// AddCPU writes the cpuN directory for cpu.
func (tr *Tree) AddCPU(id int, cpu CPU) {
	tr.t.Helper()

	if !cpu.NoOnlineControl {
		tr.Write(fmt.Sprintf("cpu%d/online", id), "1")
	}

	freq := fmt.Sprintf("cpu%d/cpufreq/", id)
	tr.Write(freq+"scaling_min_freq", strconv.Itoa(cpu.ScalingMin))
	tr.Write(freq+"scaling_max_freq", strconv.Itoa(cpu.ScalingMax))
	tr.Write(freq+"cpuinfo_min_freq", strconv.Itoa(cpu.HardwareMin))
	tr.Write(freq+"cpuinfo_max_freq", strconv.Itoa(cpu.HardwareMax))
	tr.Write(freq+"scaling_cur_freq", strconv.Itoa(cpu.Current))
	tr.Write(freq+"scaling_governor", cpu.Governor)
	tr.Write(freq+"scaling_available_governors", strings.Join(cpu.Governors, " "))
	if len(cpu.Frequencies) > 0 {
		steps := make([]string, 0, len(cpu.Frequencies))
		for _, f := range cpu.Frequencies {
			steps = append(steps, strconv.Itoa(f))
		}
		tr.Write(freq+"scaling_available_frequencies", strings.Join(steps, " "))
	}
	if !cpu.NoEnergyPreference {
		tr.Write(freq+"energy_performance_preference", cpu.EnergyPreference)
		tr.Write(freq+"energy_performance_available_preferences", strings.Join(cpu.EnergyPreferences, " "))
	}
}

// SetList writes a topology-wide CPU list file such as "online".
func (tr *Tree) SetList(name string, cpus ...int) {
	tr.t.Helper()

	parts := make([]string, 0, len(cpus))
	for _, cpu := range cpus {
		parts = append(parts, strconv.Itoa(cpu))
	}
	tr.Write(name, strings.Join(parts, ","))
}

// Write creates or replaces rel with value plus a trailing newline, the way
// the kernel presents attribute files.
func (tr *Tree) Write(rel, value string) {
	tr.t.Helper()

	path := filepath.Join(tr.Root, rel)
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tr.t, os.WriteFile(path, []byte(value+"\n"), 0o644))
}

// Read returns the trimmed content of rel.
func (tr *Tree) Read(rel string) string {
	tr.t.Helper()

	data, err := os.ReadFile(filepath.Join(tr.Root, rel))
	require.NoError(tr.t, err)
	return strings.TrimSpace(string(data))
}

// Remove deletes rel.
func (tr *Tree) Remove(rel string) {
	tr.t.Helper()
	require.NoError(tr.t, os.Remove(filepath.Join(tr.Root, rel)))
}

// Unwritable replaces rel with a directory of the same name so that any
// open for writing fails, even when tests run as root.
func (tr *Tree) Unwritable(rel string) {
	tr.t.Helper()

	path := filepath.Join(tr.Root, rel)
	require.NoError(tr.t, os.RemoveAll(path))
	require.NoError(tr.t, os.MkdirAll(path, 0o755))
}
