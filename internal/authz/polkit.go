package authz

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	polkitBusName   = "org.freedesktop.PolicyKit1"
	polkitPath      = dbus.ObjectPath("/org/freedesktop/PolicyKit1/Authority")
	polkitCheckAuth = "org.freedesktop.PolicyKit1.Authority.CheckAuthorization"

	polkitFlagAllowUserInteraction uint32 = 1
)

type polkitSubject struct {
	Kind    string
	Details map[string]dbus.Variant
}

type polkitResult struct {
	IsAuthorized bool
	IsChallenge  bool
	Details      map[string]string
}

// PolkitAuthority queries polkit over the system bus.
type PolkitAuthority struct {
	conn *dbus.Conn
}

// NewPolkitAuthority connects to the system bus.
func NewPolkitAuthority() (*PolkitAuthority, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &PolkitAuthority{conn: conn}, nil
}

// Close releases the bus connection.
func (p *PolkitAuthority) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// CheckAuthorization calls polkit's CheckAuthorization for a unix-process
// subject.
func (p *PolkitAuthority) CheckAuthorization(ctx context.Context, req CheckRequest) (Decision, error) {
	if p == nil || p.conn == nil {
		return Decision{}, fmt.Errorf("polkit authority is not connected")
	}

	var flags uint32
	if req.AllowInteraction {
		flags |= polkitFlagAllowUserInteraction
	}
	details := req.Details
	if details == nil {
		details = map[string]string{}
	}

	subject := polkitSubject{
		Kind: "unix-process",
		Details: map[string]dbus.Variant{
			"pid":        dbus.MakeVariant(req.Subject.PID),
			"start-time": dbus.MakeVariant(req.Subject.StartTime),
			"uid":        dbus.MakeVariant(int32(req.Subject.UID)),
		},
	}

	var result polkitResult
	call := p.conn.Object(polkitBusName, polkitPath).CallWithContext(
		ctx, polkitCheckAuth, 0,
		subject, req.ActionID, details, flags, req.CancellationID,
	)
	if err := call.Store(&result); err != nil {
		return Decision{}, fmt.Errorf("polkit CheckAuthorization: %w", err)
	}

	return Decision{
		Authorized: result.IsAuthorized,
		Challenge:  result.IsChallenge,
		Details:    result.Details,
	}, nil
}

var procRoot = "/proc"

// ProcessStartTime returns the start time of pid in clock ticks since boot,
// as reported by field 22 of /proc/<pid>/stat.
func ProcessStartTime(pid int32) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("%s/%d/stat", procRoot, pid))
	if err != nil {
		return 0, fmt.Errorf("reading stat for pid %d: %w", pid, err)
	}

	// comm (field 2) may contain spaces and parentheses; fields resume after
	// the last closing parenthesis.
	stat := string(data)
	end := strings.LastIndexByte(stat, ')')
	if end < 0 {
		return 0, fmt.Errorf("malformed stat for pid %d", pid)
	}
	fields := strings.Fields(stat[end+1:])
	// fields[0] is field 3 (state); start time is field 22.
	const startTimeIndex = 22 - 3
	if len(fields) <= startTimeIndex {
		return 0, fmt.Errorf("short stat for pid %d", pid)
	}
	startTime, err := strconv.ParseUint(fields[startTimeIndex], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing start time for pid %d: %w", pid, err)
	}
	return startTime, nil
}
