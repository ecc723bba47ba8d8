package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		params string
		want   Request
	}{
		{method: MethodIsAuthorized, want: IsAuthorized{}},
		{method: MethodGetCPUsAvailable, want: GetCPUs{Set: CPUSetAvailable}},
		{method: MethodGetCPUsOnline, want: GetCPUs{Set: CPUSetOnline}},
		{method: MethodGetCPUsOffline, want: GetCPUs{Set: CPUSetOffline}},
		{method: MethodGetCPUsPresent, want: GetCPUs{Set: CPUSetPresent}},
		{method: MethodGetGovernors, params: `{"cpu":2}`, want: GetGovernors{CPU: 2}},
		{method: MethodGetEnergyPreferences, params: `{"cpu":2}`, want: GetEnergyPreferences{CPU: 2}},
		{method: MethodGetGovernor, params: `{"cpu":1}`, want: GetGovernor{CPU: 1}},
		{method: MethodGetEnergyPreference, params: `{"cpu":1}`, want: GetEnergyPreference{CPU: 1}},
		{method: MethodGetFrequencies, params: `{"cpu":0}`, want: GetFrequencies{CPU: 0}},
		{method: MethodGetLimits, params: `{"cpu":0}`, want: GetLimits{CPU: 0}},
		{method: MethodAllowedOffline, params: `{"cpu":3}`, want: AllowedOffline{CPU: 3}},
		{method: MethodUpdateSettings, params: `{"cpu":1,"min":800000,"max":2400000}`, want: UpdateSettings{CPU: 1, Min: 800000, Max: 2400000}},
		{method: MethodUpdateGovernor, params: `{"cpu":1,"governor":"performance"}`, want: UpdateGovernor{CPU: 1, Governor: "performance"}},
		{method: MethodUpdateEnergyPreference, params: `{"cpu":1,"pref":"power"}`, want: UpdateEnergyPreference{CPU: 1, Preference: "power"}},
		{method: MethodSetOnline, params: `{"cpu":4}`, want: SetOnline{CPU: 4}},
		{method: MethodSetOffline, params: `{"cpu":4}`, want: SetOffline{CPU: 4}},
		{method: MethodQuit, want: Quit{}},
	}

	for _, tc := range tests {
		t.Run(tc.method, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeRequest(tc.method, json.RawMessage(tc.params))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.method, got.Method())
		})
	}
}

func TestDecodeRequest_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeRequest("reboot", nil)
	require.ErrorIs(t, err, ErrUnknownMethod)

	_, err = DecodeRequest(MethodUpdateGovernor, nil)
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = DecodeRequest(MethodUpdateSettings, json.RawMessage(`{"cpu":"one"}`))
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = DecodeRequest(MethodSetOnline, json.RawMessage(`{"cpu":1,"force":true}`))
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestDecodeRequest_MissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method  string
		params  string
		missing string
	}{
		{method: MethodUpdateSettings, params: `{"cpu":0}`, missing: "min, max"},
		{method: MethodUpdateSettings, params: `{"cpu":0,"min":800000}`, missing: "max"},
		{method: MethodUpdateSettings, params: `{"cpu":0,"min":800000,"max":null}`, missing: "max"},
		{method: MethodUpdateGovernor, params: `{"cpu":0}`, missing: "governor"},
		{method: MethodUpdateEnergyPreference, params: `{"cpu":0}`, missing: "pref"},
		{method: MethodSetOffline, params: `{}`, missing: "cpu"},
		{method: MethodGetGovernor, params: `null`, missing: "cpu"},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.params, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRequest(tc.method, json.RawMessage(tc.params))
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Contains(t, err.Error(), "missing "+tc.missing)
		})
	}
}

func TestNewRPCRequest_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, req := range []Request{
		UpdateSettings{CPU: 3, Min: 1000, Max: 2000},
		UpdateEnergyPreference{CPU: 1, Preference: "balance_power"},
		GetCPUs{Set: CPUSetOffline},
		Quit{},
	} {
		envelope, err := NewRPCRequest(req)
		require.NoError(t, err)

		decoded, err := DecodeRequest(envelope.Method, envelope.Params)
		require.NoError(t, err)
		assert.Equal(t, req, decoded)
	}

	_, err := NewRPCRequest(nil)
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Set CPU 1 frequency 800000-2400000 kHz", UpdateSettings{CPU: 1, Min: 800000, Max: 2400000}.Describe())
	assert.Equal(t, "Set CPU 2 governor to schedutil", UpdateGovernor{CPU: 2, Governor: "schedutil"}.Describe())
	assert.Equal(t, "Set CPU 0 energy preference to power", UpdateEnergyPreference{CPU: 0, Preference: "power"}.Describe())
	assert.Equal(t, "Set CPU 5 online", SetOnline{CPU: 5}.Describe())
	assert.Equal(t, "Set CPU 5 offline", SetOffline{CPU: 5}.Describe())
}

func TestRPCErrorString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rpc error -32601: unknown method", (&RPCError{Code: CodeUnknownMethod, Message: "unknown method"}).Error())
}
