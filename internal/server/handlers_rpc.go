package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
	"github.com/pe200012/cpupower-gui-qml/internal/engine"
	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var envelope types.RPCRequest
	if err := decodeJSONStrict(r, &envelope); err != nil {
		respondRPCError(w, http.StatusBadRequest, types.CodeParseError, fmt.Sprintf("invalid rpc payload: %v", err))
		return
	}

	req, err := types.DecodeRequest(envelope.Method, envelope.Params)
	switch {
	case errors.Is(err, types.ErrUnknownMethod):
		rpcCalls.WithLabelValues("unknown", "error").Inc()
		respondRPCError(w, http.StatusNotFound, types.CodeUnknownMethod, err.Error())
		return
	case err != nil:
		rpcCalls.WithLabelValues(envelope.Method, "error").Inc()
		respondRPCError(w, http.StatusBadRequest, types.CodeInvalidParams, err.Error())
		return
	}

	caller, ok := CallerFromContext(r.Context())
	if !ok {
		rpcCalls.WithLabelValues(req.Method(), "error").Inc()
		respondRPCError(w, http.StatusForbidden, types.CodeInvalidRequest, "peer credentials unavailable")
		return
	}

	if _, isQuit := req.(types.Quit); isQuit {
		s.logger.Info().Str("caller", caller.Identity()).Msg("quit requested")
		rpcCalls.WithLabelValues(req.Method(), "ok").Inc()
		w.WriteHeader(http.StatusAccepted)
		s.requestQuit()
		return
	}

	s.idle.Begin()
	rpcInFlight.Inc()
	s.callMu.Lock()
	started := time.Now()
	result, outcome := s.dispatch(r.Context(), caller, req)
	s.callMu.Unlock()
	rpcInFlight.Dec()
	s.idle.End()

	rpcLatency.WithLabelValues(req.Method()).Observe(time.Since(started).Seconds())
	rpcCalls.WithLabelValues(req.Method(), outcome).Inc()

	data, err := json.Marshal(result)
	if err != nil {
		respondRPCError(w, http.StatusInternalServerError, types.CodeInternalError, fmt.Sprintf("encoding result: %v", err))
		return
	}
	respondJSON(w, http.StatusOK, types.RPCResponse{Result: data})
}

// dispatch runs one request and returns its wire result and a metrics
// outcome label.
func (s *Server) dispatch(ctx context.Context, caller authz.Caller, req types.Request) (any, string) {
	eng := s.engine
	rd := eng.Reader()

	switch req := req.(type) {
	case types.IsAuthorized:
		return boolInt(eng.IsAuthorized(ctx, caller)), "ok"

	case types.GetCPUs:
		eng.Touch()
		switch req.Set {
		case types.CPUSetOnline:
			return rd.Online(), "ok"
		case types.CPUSetOffline:
			return rd.Offline(), "ok"
		default:
			// Available includes present CPUs that are offline or lack
			// cpufreq, since they may still be brought online.
			return rd.Present(), "ok"
		}
	case types.GetGovernors:
		eng.Touch()
		return rd.AvailableGovernors(req.CPU), "ok"
	case types.GetEnergyPreferences:
		eng.Touch()
		return rd.AvailableEnergyPreferences(req.CPU), "ok"
	case types.GetGovernor:
		eng.Touch()
		return rd.Governor(req.CPU), "ok"
	case types.GetEnergyPreference:
		eng.Touch()
		return rd.EnergyPreference(req.CPU), "ok"
	case types.GetFrequencies:
		eng.Touch()
		rng := rd.ScalingRange(req.CPU)
		return []int{rng.MinKHz, rng.MaxKHz}, "ok"
	case types.GetLimits:
		eng.Touch()
		rng := rd.HardwareLimits(req.CPU)
		return []int{rng.MinKHz, rng.MaxKHz}, "ok"
	case types.AllowedOffline:
		eng.Touch()
		return boolInt(rd.AllowedOffline(req.CPU)), "ok"

	case types.UpdateSettings:
		return resultOf(eng.UpdateFrequencyRange(ctx, caller, req.CPU, req.Min, req.Max))
	case types.UpdateGovernor:
		return resultOf(eng.UpdateGovernor(ctx, caller, req.CPU, req.Governor))
	case types.UpdateEnergyPreference:
		return resultOf(eng.UpdateEnergyPreference(ctx, caller, req.CPU, req.Preference))
	case types.SetOnline:
		return resultOf(eng.SetOnline(ctx, caller, req.CPU))
	case types.SetOffline:
		return resultOf(eng.SetOffline(ctx, caller, req.CPU))
	}

	// types.Quit is answered before dispatch.
	return nil, "error"
}

func resultOf(res engine.Result) (any, string) {
	return int(res), strings.ReplaceAll(res.String(), " ", "_")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
