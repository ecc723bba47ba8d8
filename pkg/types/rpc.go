package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeUnknownMethod  = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	// ErrUnknownMethod indicates a method name outside the helper's surface.
	ErrUnknownMethod = errors.New("unknown method")
	// ErrInvalidParams indicates parameters that do not decode into the
	// method's argument type.
	ErrInvalidParams = errors.New("invalid params")
)

// RPCRequest is the body of POST /helper/v1/rpc.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse carries either a result or an error.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError describes a failed call.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRPCRequest encodes req into an envelope.
func NewRPCRequest(req Request) (RPCRequest, error) {
	if req == nil {
		return RPCRequest{}, fmt.Errorf("request is required")
	}
	params, err := json.Marshal(req)
	if err != nil {
		return RPCRequest{}, fmt.Errorf("encoding %s params: %w", req.Method(), err)
	}
	return RPCRequest{Method: req.Method(), Params: params}, nil
}

// DecodeRequest maps a method name and its params onto the typed request.
func DecodeRequest(method string, params json.RawMessage) (Request, error) {
	method = strings.TrimSpace(method)

	var req Request
	switch method {
	case MethodIsAuthorized:
		req = IsAuthorized{}
	case MethodGetCPUsAvailable:
		return GetCPUs{Set: CPUSetAvailable}, nil
	case MethodGetCPUsOnline:
		return GetCPUs{Set: CPUSetOnline}, nil
	case MethodGetCPUsOffline:
		return GetCPUs{Set: CPUSetOffline}, nil
	case MethodGetCPUsPresent:
		return GetCPUs{Set: CPUSetPresent}, nil
	case MethodGetGovernors:
		return decodeParams[GetGovernors](method, params)
	case MethodGetEnergyPreferences:
		return decodeParams[GetEnergyPreferences](method, params)
	case MethodGetGovernor:
		return decodeParams[GetGovernor](method, params)
	case MethodGetEnergyPreference:
		return decodeParams[GetEnergyPreference](method, params)
	case MethodGetFrequencies:
		return decodeParams[GetFrequencies](method, params)
	case MethodGetLimits:
		return decodeParams[GetLimits](method, params)
	case MethodAllowedOffline:
		return decodeParams[AllowedOffline](method, params)
	case MethodUpdateSettings:
		return decodeParams[UpdateSettings](method, params)
	case MethodUpdateGovernor:
		return decodeParams[UpdateGovernor](method, params)
	case MethodUpdateEnergyPreference:
		return decodeParams[UpdateEnergyPreference](method, params)
	case MethodSetOnline:
		return decodeParams[SetOnline](method, params)
	case MethodSetOffline:
		return decodeParams[SetOffline](method, params)
	case MethodQuit:
		req = Quit{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return req, nil
}

func decodeParams[T Request](method string, params json.RawMessage) (Request, error) {
	var req T
	if len(bytes.TrimSpace(params)) == 0 {
		return nil, fmt.Errorf("%w: %s requires params", ErrInvalidParams, method)
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, method, err)
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(params, &present); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, method, err)
	}
	if missing := missingFields(reflect.TypeFor[T](), present); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrInvalidParams, method, strings.Join(missing, ", "))
	}
	return req, nil
}

// missingFields lists the JSON names of t's fields that are absent or null
// in present. Every param field is required.
func missingFields(t reflect.Type, present map[string]json.RawMessage) []string {
	var missing []string
	for i := range t.NumField() {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		raw, ok := present[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			missing = append(missing, name)
		}
	}
	return missing
}
