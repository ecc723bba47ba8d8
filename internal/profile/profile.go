// Package profile reads, generates and writes CPU settings profiles.
//
// A profile file starts with a "# name: <name>" header followed by one row
// per CPU selection:
//
//	<cpus> <min MHz> <max MHz> <governor> [online] [energy preference]
//
// where <cpus> is a kernel CPU list ("0-3,6") and "-" keeps the hardware
// limit (frequencies) or the current value (governor, preference).
package profile

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
)

const (
	// FileExtension marks profile files in a profile directory.
	FileExtension = ".profile"
	// UserFilePrefix prefixes profile files written by Save.
	UserFilePrefix = "cpg-"

	namePrefix  = "# name:"
	placeholder = "-"
	khzPerMHz   = 1000
)

// Source records where a profile came from.
type Source int

const (
	SourceBuiltin Source = iota
	SourceSystem
	SourceUser
)

func (s Source) String() string {
	switch s {
	case SourceBuiltin:
		return "builtin"
	case SourceSystem:
		return "system"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Entry is the target state of one CPU.
type Entry struct {
	CPU              int    `json:"cpu"`
	MinKHz           int    `json:"minKHz"`
	MaxKHz           int    `json:"maxKHz"`
	Governor         string `json:"governor,omitempty"`
	Online           bool   `json:"online"`
	EnergyPreference string `json:"energyPreference,omitempty"`
}

// Profile is a named set of per-CPU entries, ordered by CPU.
type Profile struct {
	Name    string  `json:"name"`
	Source  Source  `json:"-"`
	Path    string  `json:"path,omitempty"`
	Entries []Entry `json:"entries"`
}

// Deletable reports whether the profile belongs to the user.
func (p Profile) Deletable() bool {
	return p.Source == SourceUser
}

// Entry returns the entry for cpu.
func (p Profile) Entry(cpu int) (Entry, bool) {
	for _, e := range p.Entries {
		if e.CPU == cpu {
			return e, true
		}
	}
	return Entry{}, false
}

// Limits resolves hardware frequency limits for "-" placeholders.
type Limits interface {
	HardwareLimits(cpu int) sysfs.FrequencyRange
}

// Parse reads a profile. fallbackName is used when the file has no name
// header. limits may be nil, leaving placeholder frequencies at zero.
// Malformed rows are skipped.
func Parse(r io.Reader, fallbackName string, limits Limits) (Profile, error) {
	logger := log.With().Str("component", "profile").Logger()

	entries := map[int]Entry{}
	profile := Profile{}
	first := true

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if name, ok := strings.CutPrefix(line, namePrefix); ok {
				profile.Name = strings.TrimSpace(name)
				continue
			}
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			logger.Warn().Int("line", lineNo).Msg("profile row has fewer than four columns")
			continue
		}
		cpus, err := sysfs.ParseRangeList(fields[0])
		if err != nil {
			logger.Warn().Err(err).Int("line", lineNo).Msg("skipping profile row")
			continue
		}

		minKHz := parseMHz(fields[1])
		maxKHz := parseMHz(fields[2])
		governor := fields[3]
		if governor == placeholder {
			governor = ""
		}
		online := true
		if len(fields) > 4 {
			online = parseOnline(fields[4])
		}
		pref := ""
		if len(fields) > 5 && fields[5] != placeholder {
			pref = fields[5]
		}

		for _, cpu := range cpus {
			e := Entry{
				CPU:              cpu,
				MinKHz:           minKHz,
				MaxKHz:           maxKHz,
				Governor:         governor,
				Online:           online,
				EnergyPreference: pref,
			}
			if limits != nil && (e.MinKHz == 0 || e.MaxKHz == 0) {
				hw := limits.HardwareLimits(cpu)
				if e.MinKHz == 0 {
					e.MinKHz = hw.MinKHz
				}
				if e.MaxKHz == 0 {
					e.MaxKHz = hw.MaxKHz
				}
			}
			entries[cpu] = e
		}
	}
	if err := scanner.Err(); err != nil {
		return Profile{}, fmt.Errorf("reading profile: %w", err)
	}

	if profile.Name == "" {
		profile.Name = fallbackName
	}
	profile.Entries = sortedEntries(entries)
	return profile, nil
}

// Format writes p in the profile file format.
func Format(w io.Writer, p Profile) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %s\n\n", namePrefix, p.Name)
	fmt.Fprintln(bw, "# CPU\tMin\tMax\tGovernor\tOnline\tEnergyPref")
	for _, e := range p.Entries {
		online := "n"
		if e.Online {
			online = "y"
		}
		fmt.Fprintf(bw, "%d\t%s\t%s\t%s\t%s",
			e.CPU, formatMHz(e.MinKHz), formatMHz(e.MaxKHz), orPlaceholder(e.Governor), online)
		if e.EnergyPreference != "" {
			fmt.Fprintf(bw, "\t%s", e.EnergyPreference)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// FileName returns the user profile file name for name.
func FileName(name string) string {
	return UserFilePrefix + strings.ReplaceAll(name, " ", "-") + FileExtension
}

// baseName mirrors the fallback naming of header-less files: the file
// name up to its first dot.
func baseName(path string) string {
	name, _, _ := strings.Cut(filepath.Base(path), ".")
	return name
}

func parseMHz(field string) int {
	if field == placeholder {
		return 0
	}
	mhz, err := strconv.Atoi(field)
	if err != nil || mhz <= 0 {
		return 0
	}
	return mhz * khzPerMHz
}

func formatMHz(khz int) string {
	if khz <= 0 {
		return placeholder
	}
	return strconv.Itoa(khz / khzPerMHz)
}

func parseOnline(field string) bool {
	switch strings.ToLower(field) {
	case "y", "yes", "1", "true":
		return true
	default:
		return false
	}
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func sortedEntries(entries map[int]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CPU < out[j].CPU })
	return out
}
