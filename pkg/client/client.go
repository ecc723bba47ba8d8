// Package client provides a typed client for the privileged helper.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pe200012/cpupower-gui-qml/pkg/types"
)

const (
	// defaultTimeout outlasts the helper's interactive authorization window.
	defaultTimeout = 150 * time.Second
	unixBaseURL    = "http://helper"
)

// ErrHelperUnavailable reports that the helper could not be reached.
var ErrHelperUnavailable = errors.New("privileged helper unavailable")

// Config holds helper client configuration.
type Config struct {
	// SocketPath is the helper's unix socket. Defaults to
	// types.DefaultSocketPath.
	SocketPath string
	// BaseURL reaches the helper over TCP instead of the socket.
	BaseURL string
	// Timeout bounds one call, including any authorization prompt.
	Timeout time.Duration
}

// Client is the typed helper client.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
}

// New creates a helper client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("client: Timeout must not be negative")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		cfg.SocketPath = strings.TrimSpace(cfg.SocketPath)
		if cfg.SocketPath == "" {
			cfg.SocketPath = types.DefaultSocketPath
		}
		socketPath := cfg.SocketPath
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		baseURL = unixBaseURL
	}
	cfg.BaseURL = baseURL

	return &Client{
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL: baseURL,
		cfg:     cfg,
	}, nil
}

// Call sends req and decodes its result into out, which may be nil.
// Transport failures wrap ErrHelperUnavailable; helper-side rejections are
// returned as *types.RPCError.
func (c *Client) Call(ctx context.Context, req types.Request, out any) error {
	envelope, err := types.NewRPCRequest(req)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", req.Method(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+types.RPCPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", req.Method(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var rpcResp types.RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: unexpected status %d", req.Method(), resp.StatusCode)
		}
		return fmt.Errorf("decoding %s response: %w", req.Method(), err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", req.Method(), rpcResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", req.Method(), resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", req.Method(), err)
	}
	return nil
}

// Health fetches the helper's liveness status.
func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var out types.Health
	err := c.get(ctx, types.HealthPath, &out)
	return out, err
}

// Version fetches the helper's build information.
func (c *Client) Version(ctx context.Context) (types.Version, error) {
	var out types.Version
	err := c.get(ctx, types.VersionPath, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building GET %s request: %w", path, err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding GET %s response: %w", path, err)
	}
	return nil
}

// IsAuthorized reports whether the calling process may mutate CPU state.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	var v int
	if err := c.Call(ctx, types.IsAuthorized{}, &v); err != nil {
		return false, err
	}
	return v == 1, nil
}

// CPUs lists one of the topology-wide CPU sets.
func (c *Client) CPUs(ctx context.Context, set types.CPUSet) ([]int, error) {
	var cpus []int
	if err := c.Call(ctx, types.GetCPUs{Set: set}, &cpus); err != nil {
		return nil, err
	}
	return cpus, nil
}

// Governors lists the governors cpu accepts.
func (c *Client) Governors(ctx context.Context, cpu int) ([]string, error) {
	var out []string
	if err := c.Call(ctx, types.GetGovernors{CPU: cpu}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EnergyPreferences lists the energy preferences cpu accepts.
func (c *Client) EnergyPreferences(ctx context.Context, cpu int) ([]string, error) {
	var out []string
	if err := c.Call(ctx, types.GetEnergyPreferences{CPU: cpu}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Governor returns the active governor of cpu.
func (c *Client) Governor(ctx context.Context, cpu int) (string, error) {
	var out string
	err := c.Call(ctx, types.GetGovernor{CPU: cpu}, &out)
	return out, err
}

// EnergyPreference returns the active energy preference of cpu.
func (c *Client) EnergyPreference(ctx context.Context, cpu int) (string, error) {
	var out string
	err := c.Call(ctx, types.GetEnergyPreference{CPU: cpu}, &out)
	return out, err
}

// Frequencies returns the current [min, max] scaling range of cpu.
func (c *Client) Frequencies(ctx context.Context, cpu int) ([2]int, error) {
	var out [2]int
	err := c.Call(ctx, types.GetFrequencies{CPU: cpu}, &out)
	return out, err
}

// Limits returns the [min, max] hardware limits of cpu.
func (c *Client) Limits(ctx context.Context, cpu int) ([2]int, error) {
	var out [2]int
	err := c.Call(ctx, types.GetLimits{CPU: cpu}, &out)
	return out, err
}

// AllowedOffline reports whether cpu can be taken offline.
func (c *Client) AllowedOffline(ctx context.Context, cpu int) (bool, error) {
	var v int
	if err := c.Call(ctx, types.AllowedOffline{CPU: cpu}, &v); err != nil {
		return false, err
	}
	return v == 1, nil
}

// Apply runs one mutation and returns the helper's result code.
func (c *Client) Apply(ctx context.Context, m types.Mutation) (int, error) {
	var code int
	if err := c.Call(ctx, m, &code); err != nil {
		return 0, err
	}
	return code, nil
}

// Quit asks the helper to exit.
func (c *Client) Quit(ctx context.Context) error {
	return c.Call(ctx, types.Quit{}, nil)
}
