package server

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
)

type callerContextKey struct{}

var processStartTime = authz.ProcessStartTime

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller authz.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext returns the caller attached to ctx.
func CallerFromContext(ctx context.Context) (authz.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(authz.Caller)
	return caller, ok
}

// ConnContext attaches the peer credentials of unix-socket connections to
// each request context. It is meant for http.Server.ConnContext.
func ConnContext(ctx context.Context, conn net.Conn) context.Context {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return ctx
	}
	caller, err := peerCaller(unixConn)
	if err != nil {
		return ctx
	}
	return WithCaller(ctx, caller)
}

func peerCaller(conn *net.UnixConn) (authz.Caller, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return authz.Caller{}, fmt.Errorf("accessing socket: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return authz.Caller{}, fmt.Errorf("reading peer credentials: %w", err)
	}
	if credErr != nil {
		return authz.Caller{}, fmt.Errorf("reading peer credentials: %w", credErr)
	}

	startTime, err := processStartTime(cred.Pid)
	if err != nil {
		return authz.Caller{}, err
	}
	return authz.Caller{PID: cred.Pid, UID: cred.Uid, StartTime: startTime}, nil
}
