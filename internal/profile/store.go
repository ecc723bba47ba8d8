package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
)

// BalancedName is the builtin profile using the most adaptive governor.
const BalancedName = "Balanced"

var (
	// ErrNotFound indicates no profile has the requested name.
	ErrNotFound = errors.New("profile not found")
	// ErrReadOnly indicates a builtin or system profile cannot be changed.
	ErrReadOnly = errors.New("profile is read-only")
	// ErrEmptyName indicates a profile name is required.
	ErrEmptyName = errors.New("profile name cannot be empty")
)

// balancedGovernors lists governor preferences for the Balanced profile.
var balancedGovernors = []string{"schedutil", "ondemand", "powersave"}

// Topology is the read-only view used to generate builtin profiles.
type Topology interface {
	Limits
	Available() []int
	AvailableGovernors(cpu int) []string
}

// Builtins generates one profile per governor offered by CPU 0, except
// userspace, plus Balanced when a suitable governor exists.
func Builtins(topo Topology) []Profile {
	governors := topo.AvailableGovernors(0)
	if len(governors) == 0 {
		return nil
	}
	cpus := topo.Available()

	build := func(name, governor string) Profile {
		p := Profile{Name: name, Source: SourceBuiltin, Entries: make([]Entry, 0, len(cpus))}
		for _, cpu := range cpus {
			hw := topo.HardwareLimits(cpu)
			p.Entries = append(p.Entries, Entry{
				CPU:      cpu,
				MinKHz:   hw.MinKHz,
				MaxKHz:   hw.MaxKHz,
				Governor: governor,
				Online:   true,
			})
		}
		return p
	}

	var out []Profile
	seen := map[string]bool{}
	for _, candidate := range balancedGovernors {
		if slices.Contains(governors, candidate) {
			out = append(out, build(BalancedName, candidate))
			seen[BalancedName] = true
			break
		}
	}
	for _, governor := range governors {
		if governor == "userspace" {
			continue
		}
		name := capitalize(governor)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, build(name, governor))
	}
	return out
}

// Store holds profiles layered builtin, then system dir, then user dir,
// later layers replacing earlier profiles of the same name.
type Store struct {
	topo      Topology
	systemDir string
	userDir   string
	logger    zerolog.Logger

	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewStore creates a store. Call Load before use.
func NewStore(topo Topology, systemDir, userDir string) *Store {
	return &Store{
		topo:      topo,
		systemDir: systemDir,
		userDir:   userDir,
		logger:    log.With().Str("component", "profile").Logger(),
		profiles:  map[string]Profile{},
	}
}

// Load rebuilds the store from the builtins and both directories.
func (s *Store) Load() error {
	profiles := map[string]Profile{}
	if s.topo != nil {
		for _, p := range Builtins(s.topo) {
			profiles[p.Name] = p
		}
	}
	if err := s.loadDir(profiles, s.systemDir, SourceSystem); err != nil {
		return err
	}
	if err := s.loadDir(profiles, s.userDir, SourceUser); err != nil {
		return err
	}

	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

func (s *Store) loadDir(profiles map[string]Profile, dir string, source Source) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing profiles in %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExtension) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := s.readFile(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("skipping profile")
			continue
		}
		p.Source = source
		p.Path = path
		profiles[p.Name] = p
	}
	return nil
}

func (s *Store) readFile(path string) (Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Profile{}, err
	}
	defer f.Close()

	var limits Limits
	if s.topo != nil {
		limits = s.topo
	}
	return Parse(f, baseName(path), limits)
}

// Names returns all profile names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the profile called name.
func (s *Store) Get(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Save writes a user profile, replacing an existing user profile of the
// same name. Builtin and system profiles cannot be overwritten.
func (s *Store) Save(name string, entries []Entry) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, ErrEmptyName
	}
	if s.userDir == "" {
		return Profile{}, fmt.Errorf("saving profile %s: no user profile directory", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[name]; ok && !existing.Deletable() {
		return Profile{}, fmt.Errorf("%w: %s is a %s profile", ErrReadOnly, name, existing.Source)
	}

	byCPU := make(map[int]Entry, len(entries))
	for _, e := range entries {
		byCPU[e.CPU] = e
	}
	p := Profile{
		Name:    name,
		Source:  SourceUser,
		Path:    filepath.Join(s.userDir, FileName(name)),
		Entries: sortedEntries(byCPU),
	}

	if err := os.MkdirAll(s.userDir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("creating %s: %w", s.userDir, err)
	}
	f, err := os.Create(p.Path)
	if err != nil {
		return Profile{}, fmt.Errorf("writing profile %s: %w", name, err)
	}
	if err := Format(f, p); err != nil {
		f.Close()
		return Profile{}, fmt.Errorf("writing profile %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Profile{}, fmt.Errorf("writing profile %s: %w", name, err)
	}

	s.profiles[name] = p
	s.logger.Info().Str("profile", name).Str("path", p.Path).Msg("profile saved")
	return p, nil
}

// Delete removes a user profile and its file.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !p.Deletable() {
		return fmt.Errorf("%w: %s is a %s profile", ErrReadOnly, name, p.Source)
	}
	if p.Path != "" {
		if err := os.Remove(p.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting profile %s: %w", name, err)
		}
	}
	delete(s.profiles, name)
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var _ Topology = (*sysfs.Reader)(nil)
