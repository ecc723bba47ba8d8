// Package types defines the public request/response payloads of the
// privileged helper API.
package types

import "fmt"

const (
	// ServiceName is the helper's fixed service identity.
	ServiceName = "io.github.cpupower_gui.qt.helper"
	// DefaultSocketPath is where the helper listens.
	DefaultSocketPath = "/run/cpupower-gui-helper.sock"

	// RPCPath accepts every helper method call.
	RPCPath = "/helper/v1/rpc"
	// HealthPath reports liveness.
	HealthPath = "/health"
	// VersionPath reports build information.
	VersionPath = "/version"
	// MetricsPath exposes Prometheus metrics.
	MetricsPath = "/metrics"
)

// Helper method names.
const (
	MethodIsAuthorized           = "isauthorized"
	MethodGetCPUsAvailable       = "get_cpus_available"
	MethodGetCPUsOnline          = "get_cpus_online"
	MethodGetCPUsOffline         = "get_cpus_offline"
	MethodGetCPUsPresent         = "get_cpus_present"
	MethodGetGovernors           = "get_cpu_governors"
	MethodGetEnergyPreferences   = "get_cpu_energy_preferences"
	MethodGetGovernor            = "get_cpu_governor"
	MethodGetEnergyPreference    = "get_cpu_energy_preference"
	MethodGetFrequencies         = "get_cpu_frequencies"
	MethodGetLimits              = "get_cpu_limits"
	MethodAllowedOffline         = "cpu_allowed_offline"
	MethodUpdateSettings         = "update_cpu_settings"
	MethodUpdateGovernor         = "update_cpu_governor"
	MethodUpdateEnergyPreference = "update_cpu_energy_prefs"
	MethodSetOnline              = "set_cpu_online"
	MethodSetOffline             = "set_cpu_offline"
	MethodQuit                   = "quit"
)

// CPUSet selects one of the topology-wide CPU lists.
type CPUSet string

// CPU sets.
const (
	CPUSetAvailable CPUSet = "available"
	CPUSetOnline    CPUSet = "online"
	CPUSetOffline   CPUSet = "offline"
	CPUSetPresent   CPUSet = "present"
)

// Request is one helper call. The set of implementations is closed.
type Request interface {
	Method() string
	isRequest()
}

// Mutation is a Request that changes CPU state and is run through the
// client operation queue.
type Mutation interface {
	Request
	// Describe returns a human-readable summary used in batch errors.
	Describe() string
}

// IsAuthorized probes the caller's authorization.
type IsAuthorized struct{}

// GetCPUs lists a topology-wide CPU set.
type GetCPUs struct {
	Set CPUSet `json:"-"`
}

// GetGovernors lists the governors a CPU accepts.
type GetGovernors struct {
	CPU int `json:"cpu"`
}

// GetEnergyPreferences lists the energy preferences a CPU accepts.
type GetEnergyPreferences struct {
	CPU int `json:"cpu"`
}

// GetGovernor reads the active governor.
type GetGovernor struct {
	CPU int `json:"cpu"`
}

// GetEnergyPreference reads the active energy preference.
type GetEnergyPreference struct {
	CPU int `json:"cpu"`
}

// GetFrequencies reads the current scaling range.
type GetFrequencies struct {
	CPU int `json:"cpu"`
}

// GetLimits reads the hardware frequency limits.
type GetLimits struct {
	CPU int `json:"cpu"`
}

// AllowedOffline reports whether a CPU can be taken offline.
type AllowedOffline struct {
	CPU int `json:"cpu"`
}

// UpdateSettings sets the scaling range in kHz.
type UpdateSettings struct {
	CPU int `json:"cpu"`
	Min int `json:"min"`
	Max int `json:"max"`
}

// UpdateGovernor sets the scaling governor.
type UpdateGovernor struct {
	CPU      int    `json:"cpu"`
	Governor string `json:"governor"`
}

// UpdateEnergyPreference sets the energy-performance preference.
type UpdateEnergyPreference struct {
	CPU        int    `json:"cpu"`
	Preference string `json:"pref"`
}

// SetOnline brings a CPU online.
type SetOnline struct {
	CPU int `json:"cpu"`
}

// SetOffline takes a CPU offline.
type SetOffline struct {
	CPU int `json:"cpu"`
}

// Quit asks the helper to exit.
type Quit struct{}

func (IsAuthorized) Method() string { return MethodIsAuthorized }
func (r GetCPUs) Method() string { return "get_cpus_" + string(r.Set) }
func (GetGovernors) Method() string { return MethodGetGovernors }
func (GetEnergyPreferences) Method() string { return MethodGetEnergyPreferences }
func (GetGovernor) Method() string { return MethodGetGovernor }
func (GetEnergyPreference) Method() string { return MethodGetEnergyPreference }
func (GetFrequencies) Method() string { return MethodGetFrequencies }
func (GetLimits) Method() string { return MethodGetLimits }
func (AllowedOffline) Method() string { return MethodAllowedOffline }
func (UpdateSettings) Method() string { return MethodUpdateSettings }
func (UpdateGovernor) Method() string { return MethodUpdateGovernor }
func (UpdateEnergyPreference) Method() string { return MethodUpdateEnergyPreference }
func (SetOnline) Method() string { return MethodSetOnline }
func (SetOffline) Method() string { return MethodSetOffline }
func (Quit) Method() string { return MethodQuit }

func (IsAuthorized) isRequest() {}
func (GetCPUs) isRequest() {}
func (GetGovernors) isRequest() {}
func (GetEnergyPreferences) isRequest() {}
func (GetGovernor) isRequest() {}
func (GetEnergyPreference) isRequest() {}
func (GetFrequencies) isRequest() {}
func (GetLimits) isRequest() {}
func (AllowedOffline) isRequest() {}
func (UpdateSettings) isRequest() {}
func (UpdateGovernor) isRequest() {}
func (UpdateEnergyPreference) isRequest() {}
func (SetOnline) isRequest() {}
func (SetOffline) isRequest() {}
func (Quit) isRequest() {}

// Describe implements Mutation.
func (r UpdateSettings) Describe() string {
	return fmt.Sprintf("Set CPU %d frequency %d-%d kHz", r.CPU, r.Min, r.Max)
}

// Describe implements Mutation.
func (r UpdateGovernor) Describe() string {
	return fmt.Sprintf("Set CPU %d governor to %s", r.CPU, r.Governor)
}

// Describe implements Mutation.
func (r UpdateEnergyPreference) Describe() string {
	return fmt.Sprintf("Set CPU %d energy preference to %s", r.CPU, r.Preference)
}

// Describe implements Mutation.
func (r SetOnline) Describe() string {
	return fmt.Sprintf("Set CPU %d online", r.CPU)
}

// Describe implements Mutation.
func (r SetOffline) Describe() string {
	return fmt.Sprintf("Set CPU %d offline", r.CPU)
}

// Health is the payload returned by GET /health.
type Health struct {
	Status string `json:"status"`
}

// Version is the payload returned by GET /version.
type Version struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}
