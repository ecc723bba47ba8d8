package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
	"github.com/pe200012/cpupower-gui-qml/internal/config"
	"github.com/pe200012/cpupower-gui-qml/internal/engine"
	"github.com/pe200012/cpupower-gui-qml/internal/server"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs/sysfstest"
)

type grantAll struct{}

func (grantAll) CheckAuthorization(context.Context, authz.CheckRequest) (authz.Decision, error) {
	return authz.Decision{Authorized: true}, nil
}

type harness struct {
	tree    *sysfstest.Tree
	helper  *server.Server
	socket  string
	userDir string
}

// newHarness builds a fake topology and points cpupowerctl at it through
// the environment. With withHelper, a real helper serves the socket.
func newHarness(t *testing.T, withHelper bool) *harness {
	t.Helper()

	cpu0 := sysfstest.DefaultCPU()
	cpu0.NoOnlineControl = true
	tree := sysfstest.New(t, cpu0, sysfstest.DefaultCPU(), sysfstest.DefaultCPU())

	h := &harness{
		tree:    tree,
		socket:  filepath.Join(t.TempDir(), "helper.sock"),
		userDir: filepath.Join(t.TempDir(), "cpupower_gui"),
	}

	t.Setenv("CPUPOWERCTL_SYSFS_ROOT", tree.Root)
	t.Setenv("CPUPOWERCTL_SOCKET", h.socket)
	t.Setenv("CPUPOWERCTL_SYSTEM_PROFILE_DIR", t.TempDir())
	t.Setenv("CPUPOWERCTL_USER_CONFIG_DIR", h.userDir)
	t.Setenv("CPUPOWERCTL_LOG_LEVEL", "error")
	t.Setenv("CPUPOWERCTL_CALL_TIMEOUT", "5s")

	if !withHelper {
		return h
	}

	eng := engine.New(sysfs.NewReader(tree.Root), authz.NewGate(grantAll{}))
	h.helper = server.New(eng, config.Helper{}, "test", "none", "unknown")

	ln, err := server.Listen(h.socket, 0o600)
	require.NoError(t, err)
	httpServer := &http.Server{Handler: h.helper.Router(), ConnContext: server.ConnContext}
	go func() {
		if serveErr := httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			t.Errorf("helper serve: %v", serveErr)
		}
	}()
	t.Cleanup(func() { _ = httpServer.Close() })
	return h
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&app{out: &out, errOut: &errOut})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestStatus(t *testing.T) {
	newHarness(t, false)

	out, _, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Governor")
	assert.Contains(t, out, "balance_performance")
	assert.Contains(t, out, "400-4000")

	out, _, err = run(t, "status", "--cpus", "1-2", "--json")
	require.NoError(t, err)
	var states []sysfs.CPUState
	require.NoError(t, json.Unmarshal([]byte(out), &states))
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[0].CPU)
	assert.Equal(t, sysfs.FrequencyRange{MinKHz: 1000000, MaxKHz: 3000000}, states[0].Scaling)

	_, _, err = run(t, "status", "--cpus", "x")
	require.Error(t, err)
}

func TestSet(t *testing.T) {
	h := newHarness(t, true)

	out, _, err := run(t, "set", "--cpus", "1", "--max", "2000", "--governor", "performance")
	require.NoError(t, err)
	assert.Contains(t, out, "Set CPU 1 frequency 1000000-2000000 kHz")
	assert.Contains(t, out, "Set CPU 1 governor to performance")
	assert.Contains(t, out, "applied 2 change(s)")

	assert.Equal(t, "1000000", h.tree.Read("cpu1/cpufreq/scaling_min_freq"))
	assert.Equal(t, "2000000", h.tree.Read("cpu1/cpufreq/scaling_max_freq"))
	assert.Equal(t, "performance", h.tree.Read("cpu1/cpufreq/scaling_governor"))
	assert.Equal(t, "powersave", h.tree.Read("cpu2/cpufreq/scaling_governor"))

	_, _, err = run(t, "set", "--cpus", "2", "--offline")
	require.NoError(t, err)
	assert.Equal(t, "0", h.tree.Read("cpu2/online"))

	out, _, err = run(t, "set", "--cpus", "0", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to apply")
}

func TestSet_Validation(t *testing.T) {
	newHarness(t, false)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no selection", args: []string{"set", "--governor", "performance"}, want: "select CPUs"},
		{name: "no change", args: []string{"set", "--all"}, want: "nothing to change"},
		{name: "online and offline", args: []string{"set", "--all", "--online", "--offline"}, want: "mutually exclusive"},
		{name: "inverted range", args: []string{"set", "--all", "--min", "3000", "--max", "1000"}, want: "above --max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSet_EnergyPreferenceScope(t *testing.T) {
	h := newHarness(t, true)

	out, _, err := run(t, "set", "--cpus", "1", "--pref", "power")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 3 change(s)")
	for _, cpu := range []string{"cpu0", "cpu1", "cpu2"} {
		assert.Equal(t, "power", h.tree.Read(cpu+"/cpufreq/energy_performance_preference"), cpu)
	}

	require.NoError(t, os.MkdirAll(h.userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.userDir, config.SettingsFileName), []byte("energyPrefPerCpu: true\n"), 0o644))
	out, _, err = run(t, "set", "--cpus", "2", "--pref", "balance_power")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 1 change(s)")
	assert.Equal(t, "balance_power", h.tree.Read("cpu2/cpufreq/energy_performance_preference"))
	assert.Equal(t, "power", h.tree.Read("cpu1/cpufreq/energy_performance_preference"))
}

func TestSet_HelperUnavailable(t *testing.T) {
	newHarness(t, false)

	out, errOut, err := run(t, "set", "--cpus", "1", "--governor", "performance", "--pref", "power")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4 of 4 change(s) failed")
	assert.Contains(t, out, "✗ Set CPU 1 governor to performance")
	assert.Contains(t, errOut, "Set CPU 1 energy preference to power: privileged helper unavailable")
}

func TestProfile_ApplyAndDefaults(t *testing.T) {
	h := newHarness(t, true)

	out, _, err := run(t, "profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Balanced")
	assert.Contains(t, out, "Performance")
	assert.Contains(t, out, "builtin")

	out, _, err = run(t, "profile", "apply", "Performance")
	require.NoError(t, err)
	assert.Contains(t, out, "Set CPU 2 online")
	for _, cpu := range []string{"cpu0", "cpu1", "cpu2"} {
		assert.Equal(t, "performance", h.tree.Read(cpu+"/cpufreq/scaling_governor"))
		assert.Equal(t, "4000000", h.tree.Read(cpu+"/cpufreq/scaling_max_freq"))
	}

	_, _, err = run(t, "profile", "default", "Powersave")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(h.userDir, config.SettingsFileName))

	_, _, err = run(t, "profile", "apply")
	require.NoError(t, err)
	assert.Equal(t, "powersave", h.tree.Read("cpu1/cpufreq/scaling_governor"))

	_, _, err = run(t, "profile", "apply", "Missing")
	require.Error(t, err)
}

func TestProfile_SaveShowDelete(t *testing.T) {
	h := newHarness(t, false)
	h.tree.Write("cpu1/cpufreq/scaling_governor", "performance")

	out, _, err := run(t, "profile", "save", "Desk Work", "--cpus", "1")
	require.NoError(t, err)
	path := filepath.Join(h.userDir, "cpg-Desk-Work.profile")
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1\t1000\t3000\tperformance\ty\tbalance_performance")

	out, _, err = run(t, "profile", "show", "Desk Work")
	require.NoError(t, err)
	assert.Contains(t, out, "Desk Work (user)")
	assert.Contains(t, out, "performance")

	_, _, err = run(t, "profile", "delete", "Balanced")
	require.Error(t, err)

	_, _, err = run(t, "profile", "delete", "Desk Work")
	require.NoError(t, err)
	assert.NoFileExists(t, path)
}

func TestHelperCommands(t *testing.T) {
	h := newHarness(t, true)

	out, _, err := run(t, "helper", "authorized")
	require.NoError(t, err)
	assert.Contains(t, out, "authorized")
	assert.NotContains(t, out, "not authorized")

	_, _, err = run(t, "helper", "quit")
	require.NoError(t, err)

	select {
	case <-h.helper.QuitRequested():
	case <-time.After(5 * time.Second):
		t.Fatal("helper did not receive quit")
	}
}

func TestHelperCommands_Unavailable(t *testing.T) {
	newHarness(t, false)

	_, _, err := run(t, "helper", "authorized")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status still works read-only")
}
