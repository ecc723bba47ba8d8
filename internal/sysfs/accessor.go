// Package sysfs reads and writes CPU frequency control files under the
// kernel's CPU topology tree.
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRoot is the kernel CPU topology directory.
const DefaultRoot = "/sys/devices/system/cpu"

// Control file names.
const (
	FileOnline          = "online"
	FileOffline         = "offline"
	FilePresent         = "present"
	FileScalingMin      = "scaling_min_freq"
	FileScalingMax      = "scaling_max_freq"
	FileScalingCur      = "scaling_cur_freq"
	FileHardwareMin     = "cpuinfo_min_freq"
	FileHardwareMax     = "cpuinfo_max_freq"
	FileAvailableFreqs  = "scaling_available_frequencies"
	FileGovernor        = "scaling_governor"
	FileAvailableGovs   = "scaling_available_governors"
	FileEnergyPref      = "energy_performance_preference"
	FileAvailableEnergy = "energy_performance_available_preferences"

	cpufreqDir = "cpufreq"
)

// Accessor performs single-file reads and writes rooted at a CPU topology
// directory. It holds no policy.
type Accessor struct {
	root   string
	logger zerolog.Logger
}

// NewAccessor creates an accessor rooted at root. An empty root selects
// DefaultRoot.
func NewAccessor(root string) *Accessor {
	root = strings.TrimSpace(root)
	if root == "" {
		root = DefaultRoot
	}
	return &Accessor{
		root:   filepath.Clean(root),
		logger: log.With().Str("component", "sysfs").Logger(),
	}
}

// Root returns the topology directory the accessor reads from.
func (a *Accessor) Root() string {
	return a.root
}

// GlobalPath returns the path of a topology-wide file such as "online".
func (a *Accessor) GlobalPath(name string) string {
	return filepath.Join(a.root, name)
}

// CPUPath returns the path of a file directly under the cpuN directory.
func (a *Accessor) CPUPath(cpu int, name string) string {
	return filepath.Join(a.root, fmt.Sprintf("cpu%d", cpu), name)
}

// CPUFreqPath returns the path of a file under cpuN/cpufreq.
func (a *Accessor) CPUFreqPath(cpu int, name string) string {
	return filepath.Join(a.root, fmt.Sprintf("cpu%d", cpu), cpufreqDir, name)
}

// ReadValue returns the trimmed content of path. A missing or unreadable
// file yields the empty string.
func (a *Accessor) ReadValue(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteValue writes value to an existing control file in a single write.
// It never creates files and reports false on any open or write failure.
func (a *Accessor) WriteValue(path, value string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("failed to open control file for writing")
		return false
	}

	n, writeErr := f.Write([]byte(value))
	closeErr := f.Close()
	switch {
	case writeErr != nil:
		a.logger.Warn().Err(writeErr).Str("path", path).Str("value", value).Msg("failed to write control file")
		return false
	case n != len(value):
		a.logger.Warn().Str("path", path).Int("written", n).Int("expected", len(value)).Msg("short write to control file")
		return false
	case closeErr != nil:
		a.logger.Warn().Err(closeErr).Str("path", path).Msg("failed to close control file")
		return false
	}
	return true
}

// Exists reports whether path exists.
func (a *Accessor) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
