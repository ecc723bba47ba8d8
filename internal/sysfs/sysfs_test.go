package sysfs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs/sysfstest"
)

func TestParseRangeList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{name: "mixed ranges", input: "0-3,5,7-9", want: []int{0, 1, 2, 3, 5, 7, 8, 9}},
		{name: "empty", input: "", want: []int{}},
		{name: "whitespace only", input: " \n", want: []int{}},
		{name: "trailing newline", input: "0-1\n", want: []int{0, 1}},
		{name: "single", input: "4", want: []int{4}},
		{name: "unordered tokens", input: "8,2-3", want: []int{2, 3, 8}},
		{name: "malformed", input: "a-b", want: []int{}, wantErr: true},
		{name: "reversed range", input: "5-2", want: []int{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := sysfs.ParseRangeList(tc.input)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatRangeList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0-3,5,7-9", sysfs.FormatRangeList([]int{9, 8, 7, 5, 3, 2, 1, 0}))
	assert.Equal(t, "", sysfs.FormatRangeList(nil))
}

func TestParseWhitespaceList(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"performance", "powersave"}, sysfs.ParseWhitespaceList("performance  powersave\n"))
	assert.Equal(t, []string{}, sysfs.ParseWhitespaceList(""))
	assert.Equal(t, []string{"a", "b", "c"}, sysfs.ParseWhitespaceList("\ta b\n c "))
}

func TestAccessorReadValue(t *testing.T) {
	t.Parallel()

	tree := sysfstest.New(t, sysfstest.DefaultCPU())
	a := sysfs.NewAccessor(tree.Root)

	assert.Equal(t, "1000000", a.ReadValue(a.CPUFreqPath(0, sysfs.FileScalingMin)))
	assert.Equal(t, "", a.ReadValue(filepath.Join(tree.Root, "missing")))
}

func TestAccessorWriteValue(t *testing.T) {
	t.Parallel()

	t.Run("replaces content", func(t *testing.T) {
		t.Parallel()
		tree := sysfstest.New(t, sysfstest.DefaultCPU())
		a := sysfs.NewAccessor(tree.Root)

		path := a.CPUFreqPath(0, sysfs.FileGovernor)
		require.True(t, a.WriteValue(path, "performance"))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "performance", string(data))
	})

	t.Run("never creates files", func(t *testing.T) {
		t.Parallel()
		tree := sysfstest.New(t, sysfstest.DefaultCPU())
		a := sysfs.NewAccessor(tree.Root)

		path := a.CPUPath(7, sysfs.FileOnline)
		assert.False(t, a.WriteValue(path, "1"))
		assert.False(t, a.Exists(path))
	})

	t.Run("fails on unwritable target", func(t *testing.T) {
		t.Parallel()
		tree := sysfstest.New(t, sysfstest.DefaultCPU())
		tree.Unwritable("cpu0/cpufreq/scaling_governor")
		a := sysfs.NewAccessor(tree.Root)

		assert.False(t, a.WriteValue(a.CPUFreqPath(0, sysfs.FileGovernor), "performance"))
	})
}

func TestNewAccessorDefaultRoot(t *testing.T) {
	t.Parallel()
	assert.Equal(t, sysfs.DefaultRoot, sysfs.NewAccessor(" ").Root())
}

func TestReaderTopology(t *testing.T) {
	t.Parallel()

	cpu0 := sysfstest.DefaultCPU()
	cpu0.NoOnlineControl = true
	tree := sysfstest.New(t, cpu0, sysfstest.DefaultCPU(), sysfstest.DefaultCPU())
	tree.SetList("online", 0, 1)
	tree.SetList("offline", 2)
	r := sysfs.NewReader(tree.Root)

	assert.Equal(t, []int{0, 1, 2}, r.Present())
	assert.Equal(t, []int{0, 1}, r.Online())
	assert.Equal(t, []int{2}, r.Offline())
	assert.Equal(t, []int{0, 1, 2}, r.Available())
	assert.True(t, r.IsOnline(1))
	assert.False(t, r.IsOnline(2))
	assert.False(t, r.IsOnline(9))

	assert.False(t, r.AllowedOffline(0))
	assert.True(t, r.AllowedOffline(1))
}

func TestReaderOfflineCPUReportsZeroes(t *testing.T) {
	t.Parallel()

	tree := sysfstest.New(t, sysfstest.DefaultCPU(), sysfstest.DefaultCPU())
	tree.SetList("online", 0)
	r := sysfs.NewReader(tree.Root)

	assert.Equal(t, sysfs.FrequencyRange{}, r.ScalingRange(1))
	assert.Equal(t, sysfs.FrequencyRange{}, r.HardwareLimits(1))
	assert.Equal(t, "", r.Governor(1))
	assert.Empty(t, r.AvailableGovernors(1))
	assert.Equal(t, 0, r.CurrentFrequency(1))
}

func TestReaderSnapshot(t *testing.T) {
	t.Parallel()

	tree := sysfstest.New(t, sysfstest.DefaultCPU())
	r := sysfs.NewReader(tree.Root)

	state := r.Snapshot(0)
	assert.True(t, state.Online)
	assert.Equal(t, sysfs.FrequencyRange{MinKHz: 1000000, MaxKHz: 3000000}, state.Scaling)
	assert.Equal(t, sysfs.FrequencyRange{MinKHz: 400000, MaxKHz: 4000000}, state.Hardware)
	assert.Equal(t, 2000000, state.CurrentKHz)
	assert.Equal(t, "powersave", state.Governor)
	assert.Equal(t, []string{"performance", "powersave"}, state.Governors)
	assert.Equal(t, "balance_performance", state.EnergyPreference)
	assert.Len(t, state.EnergyPreferences, 5)
	assert.Equal(t, []int{400000, 1000000, 2000000, 3000000, 4000000}, state.AvailableFrequencies)
}

func TestReaderEnergyPreferenceSupported(t *testing.T) {
	t.Parallel()

	noEPP := sysfstest.DefaultCPU()
	noEPP.NoEnergyPreference = true
	tree := sysfstest.New(t, sysfstest.DefaultCPU(), noEPP)
	r := sysfs.NewReader(tree.Root)

	assert.True(t, r.EnergyPreferenceSupported(0))
	assert.False(t, r.EnergyPreferenceSupported(1))
	assert.Empty(t, r.AvailableEnergyPreferences(1))
}

func TestFrequencyRange(t *testing.T) {
	t.Parallel()

	hw := sysfs.FrequencyRange{MinKHz: 400000, MaxKHz: 4000000}
	assert.True(t, hw.Valid())
	assert.True(t, hw.Contains(sysfs.FrequencyRange{MinKHz: 800000, MaxKHz: 3000000}))
	assert.False(t, hw.Contains(sysfs.FrequencyRange{MinKHz: 300000, MaxKHz: 3000000}))
	assert.False(t, sysfs.FrequencyRange{MinKHz: 5, MaxKHz: 1}.Valid())
}
