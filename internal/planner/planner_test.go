package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pe200012/cpupower-gui-qml/internal/profile"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs/sysfstest"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

type mockTopology struct {
	availableFn   func() []int
	scalingFn     func(cpu int) sysfs.FrequencyRange
	energyPrefsFn func(cpu int) bool
}

func (m *mockTopology) Available() []int {
	if m.availableFn == nil {
		return nil
	}
	return m.availableFn()
}

func (m *mockTopology) ScalingRange(cpu int) sysfs.FrequencyRange {
	if m.scalingFn == nil {
		return sysfs.FrequencyRange{}
	}
	return m.scalingFn(cpu)
}

func (m *mockTopology) EnergyPreferenceSupported(cpu int) bool {
	if m.energyPrefsFn == nil {
		return false
	}
	return m.energyPrefsFn(cpu)
}

func fourCPUs() *mockTopology {
	return &mockTopology{
		availableFn: func() []int { return []int{0, 1, 2, 3} },
		scalingFn: func(cpu int) sysfs.FrequencyRange {
			return sysfs.FrequencyRange{MinKHz: 1000000 + cpu, MaxKHz: 3000000 + cpu}
		},
		energyPrefsFn: func(cpu int) bool { return cpu != 3 },
	}
}

func TestForProfile(t *testing.T) {
	t.Parallel()

	p := profile.Profile{Name: "Mixed", Entries: []profile.Entry{
		{CPU: 0, MinKHz: 800000, MaxKHz: 2400000, Governor: "powersave", Online: false, EnergyPreference: "power"},
		{CPU: 1, MinKHz: 800000, MaxKHz: 2400000, Governor: "powersave", Online: true},
		{CPU: 2, MinKHz: 800000, MaxKHz: 2400000, Governor: "powersave", Online: false},
		{CPU: 3, MinKHz: 0, MaxKHz: 2400000, Online: true, EnergyPreference: "power"},
		{CPU: 9, MinKHz: 800000, MaxKHz: 2400000, Governor: "powersave", Online: true},
	}}

	assert.Equal(t, []types.Mutation{
		types.UpdateSettings{CPU: 0, Min: 800000, Max: 2400000},
		types.UpdateGovernor{CPU: 0, Governor: "powersave"},
		types.UpdateEnergyPreference{CPU: 0, Preference: "power"},
		types.SetOnline{CPU: 1},
		types.UpdateSettings{CPU: 1, Min: 800000, Max: 2400000},
		types.UpdateGovernor{CPU: 1, Governor: "powersave"},
		types.SetOffline{CPU: 2},
		types.SetOnline{CPU: 3},
	}, ForProfile(p, fourCPUs()))
}

func TestForProfile_Empty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ForProfile(profile.Profile{Name: "Nothing"}, fourCPUs()))
}

func TestForChange(t *testing.T) {
	t.Parallel()

	online := true
	offline := false

	tests := []struct {
		name   string
		cpus   []int
		change Change
		want   []types.Mutation
	}{
		{
			name:   "full range",
			cpus:   []int{1},
			change: Change{MinKHz: 800000, MaxKHz: 2000000},
			want:   []types.Mutation{types.UpdateSettings{CPU: 1, Min: 800000, Max: 2000000}},
		},
		{
			name:   "max only keeps current min",
			cpus:   []int{2},
			change: Change{MaxKHz: 2000000},
			want:   []types.Mutation{types.UpdateSettings{CPU: 2, Min: 1000002, Max: 2000000}},
		},
		{
			name:   "min only keeps current max",
			cpus:   []int{1},
			change: Change{MinKHz: 900000},
			want:   []types.Mutation{types.UpdateSettings{CPU: 1, Min: 900000, Max: 3000001}},
		},
		{
			name:   "min above current max raises max",
			cpus:   []int{1},
			change: Change{MinKHz: 3500000},
			want:   []types.Mutation{types.UpdateSettings{CPU: 1, Min: 3500000, Max: 3500000}},
		},
		{
			name:   "max below current min lowers min",
			cpus:   []int{2},
			change: Change{MaxKHz: 900000},
			want:   []types.Mutation{types.UpdateSettings{CPU: 2, Min: 900000, Max: 900000}},
		},
		{
			name:   "everything, online last",
			cpus:   []int{0, 3},
			change: Change{Governor: "performance", EnergyPreference: "performance", Online: &offline},
			want: []types.Mutation{
				types.UpdateGovernor{CPU: 0, Governor: "performance"},
				types.UpdateEnergyPreference{CPU: 0, Preference: "performance"},
				types.UpdateGovernor{CPU: 3, Governor: "performance"},
				types.SetOffline{CPU: 3},
			},
		},
		{
			name:   "online",
			cpus:   []int{0, 2},
			change: Change{Online: &online},
			want:   []types.Mutation{types.SetOnline{CPU: 2}},
		},
		{
			name:   "no change",
			cpus:   []int{1, 2},
			change: Change{},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ForChange(tt.cpus, tt.change, fourCPUs()))
		})
	}
}

func TestChange_Empty(t *testing.T) {
	t.Parallel()

	online := true
	assert.True(t, Change{}.Empty())
	assert.False(t, Change{MaxKHz: 1}.Empty())
	assert.False(t, Change{Online: &online}.Empty())
}

func TestCapture(t *testing.T) {
	t.Parallel()

	cpu := sysfstest.DefaultCPU()
	noPref := sysfstest.DefaultCPU()
	noPref.NoEnergyPreference = true
	tree := sysfstest.New(t, cpu, noPref)
	reader := sysfs.NewReader(tree.Root)

	entries := Capture(reader, []int{0, 1})
	require.Len(t, entries, 2)
	assert.Equal(t, profile.Entry{
		CPU:              0,
		MinKHz:           1000000,
		MaxKHz:           3000000,
		Governor:         "powersave",
		Online:           true,
		EnergyPreference: "balance_performance",
	}, entries[0])
	assert.Equal(t, "", entries[1].EnergyPreference)
}
