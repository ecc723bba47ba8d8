// Package engine performs authorized, ordered writes to CPU frequency
// control files.
package engine

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
	"github.com/pe200012/cpupower-gui-qml/internal/events"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
)

// Result is the integer outcome of a mutation call.
type Result int

// Result codes returned across the RPC boundary.
const (
	ResultOK Result = 0
	// ResultRejected covers unauthorized callers, absent or offline CPUs and
	// CPUs without an online control.
	ResultRejected Result = -1
	// ResultWriteFailed reports a failed control-file write.
	ResultWriteFailed Result = -13
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultRejected:
		return "rejected"
	case ResultWriteFailed:
		return "write failed"
	default:
		return "result " + strconv.Itoa(int(r))
	}
}

const defaultPublishTimeout = 2 * time.Second

// Authorizer decides whether a caller may perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, caller authz.Caller, actionID string) bool
}

// Writer writes a single control file.
type Writer interface {
	WriteValue(path, value string) bool
}

// Toucher is notified of every inbound call.
type Toucher interface {
	Touch()
}

// TouchFunc adapts a function to Toucher.
type TouchFunc func()

// Touch implements Toucher.
func (f TouchFunc) Touch() { f() }

// Option configures an Engine.
type Option func(*Engine)

// WithWriter overrides the control-file writer.
func WithWriter(w Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.writer = w
		}
	}
}

// WithToucher registers the idle-timer reset hook.
func WithToucher(t Toucher) Option {
	return func(e *Engine) {
		if t != nil {
			e.toucher = t
		}
	}
}

// WithPublisher sets the publisher that receives mutation events.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithActionID overrides the authorization action guarding mutations.
func WithActionID(actionID string) Option {
	return func(e *Engine) {
		if actionID != "" {
			e.actionID = actionID
		}
	}
}

// Engine executes mutation calls.
type Engine struct {
	reader    *sysfs.Reader
	writer    Writer
	gate      Authorizer
	toucher   Toucher
	publisher events.Publisher
	actionID  string
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates an engine reading through reader and authorizing through gate.
func New(reader *sysfs.Reader, gate Authorizer, opts ...Option) *Engine {
	e := &Engine{
		reader:    reader,
		writer:    reader,
		gate:      gate,
		toucher:   TouchFunc(func() {}),
		publisher: events.Noop{},
		actionID:  authz.DefaultActionID,
		now:       time.Now,
		logger:    log.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reader returns the topology reader the engine operates on.
func (e *Engine) Reader() *sysfs.Reader {
	return e.reader
}

// Touch resets the idle timer without doing anything else. Read-only calls
// use it.
func (e *Engine) Touch() {
	e.toucher.Touch()
}

// IsAuthorized reports whether caller holds the mutation action.
func (e *Engine) IsAuthorized(ctx context.Context, caller authz.Caller) bool {
	e.toucher.Touch()
	return e.authorized(ctx, caller)
}

// UpdateFrequencyRange sets scaling_min_freq and scaling_max_freq of cpu,
// ordering the two writes so the kernel never sees min > max.
func (e *Engine) UpdateFrequencyRange(ctx context.Context, caller authz.Caller, cpu, newMin, newMax int) Result {
	e.toucher.Touch()
	logger := e.logger.With().Int("cpu", cpu).Int("min", newMin).Int("max", newMax).Logger()
	args := map[string]string{"min": strconv.Itoa(newMin), "max": strconv.Itoa(newMax)}

	if res := e.precondition(ctx, caller, cpu, logger); res != ResultOK {
		return e.finish(ctx, "update_cpu_settings", cpu, caller, args, res)
	}

	current := e.reader.ScalingRange(cpu)
	order := PlanRangeWrites(current, newMin, newMax)
	logger.Debug().
		Int("current_min", current.MinKHz).
		Int("current_max", current.MaxKHz).
		Stringer("first", order[0]).
		Msg("writing frequency range")

	values := map[Bound]int{BoundMin: newMin, BoundMax: newMax}
	ok := true
	for _, bound := range order {
		if !e.writer.WriteValue(e.reader.CPUFreqPath(cpu, bound.file()), strconv.Itoa(values[bound])) {
			logger.Warn().Stringer("bound", bound).Msg("frequency write failed")
			ok = false
		}
	}
	e.verifyRange(cpu, newMin, newMax, logger)

	res := ResultOK
	if !ok {
		res = ResultWriteFailed
	}
	return e.finish(ctx, "update_cpu_settings", cpu, caller, args, res)
}

// UpdateGovernor writes scaling_governor. An unknown governor is rejected
// by the kernel write itself.
func (e *Engine) UpdateGovernor(ctx context.Context, caller authz.Caller, cpu int, governor string) Result {
	e.toucher.Touch()
	logger := e.logger.With().Int("cpu", cpu).Str("governor", governor).Logger()
	args := map[string]string{"governor": governor}

	if res := e.precondition(ctx, caller, cpu, logger); res != ResultOK {
		return e.finish(ctx, "update_cpu_governor", cpu, caller, args, res)
	}

	res := ResultOK
	if !e.writer.WriteValue(e.reader.CPUFreqPath(cpu, sysfs.FileGovernor), governor) {
		res = ResultWriteFailed
	}
	return e.finish(ctx, "update_cpu_governor", cpu, caller, args, res)
}

// UpdateEnergyPreference writes energy_performance_preference. A preference
// the CPU does not offer, or a missing control file, is a successful no-op.
func (e *Engine) UpdateEnergyPreference(ctx context.Context, caller authz.Caller, cpu int, preference string) Result {
	e.toucher.Touch()
	logger := e.logger.With().Int("cpu", cpu).Str("preference", preference).Logger()
	args := map[string]string{"preference": preference}

	if res := e.precondition(ctx, caller, cpu, logger); res != ResultOK {
		return e.finish(ctx, "update_cpu_energy_prefs", cpu, caller, args, res)
	}

	if !slices.Contains(e.reader.AvailableEnergyPreferences(cpu), preference) {
		logger.Debug().Msg("energy preference not offered; skipping")
		return e.finish(ctx, "update_cpu_energy_prefs", cpu, caller, args, ResultOK)
	}
	path := e.reader.CPUFreqPath(cpu, sysfs.FileEnergyPref)
	if !e.reader.Exists(path) {
		logger.Debug().Msg("energy preference control absent; skipping")
		return e.finish(ctx, "update_cpu_energy_prefs", cpu, caller, args, ResultOK)
	}

	res := ResultOK
	if !e.writer.WriteValue(path, preference) {
		res = ResultWriteFailed
	}
	return e.finish(ctx, "update_cpu_energy_prefs", cpu, caller, args, res)
}

// SetOnline brings cpu online.
func (e *Engine) SetOnline(ctx context.Context, caller authz.Caller, cpu int) Result {
	return e.setOnlineState(ctx, caller, cpu, true)
}

// SetOffline takes cpu offline.
func (e *Engine) SetOffline(ctx context.Context, caller authz.Caller, cpu int) Result {
	return e.setOnlineState(ctx, caller, cpu, false)
}

func (e *Engine) setOnlineState(ctx context.Context, caller authz.Caller, cpu int, online bool) Result {
	e.toucher.Touch()
	method, value := "set_cpu_offline", "0"
	if online {
		method, value = "set_cpu_online", "1"
	}
	logger := e.logger.With().Int("cpu", cpu).Bool("online", online).Logger()

	if !e.authorized(ctx, caller) {
		logger.Warn().Str("caller", caller.Identity()).Msg("caller not authorized")
		return e.finish(ctx, method, cpu, caller, nil, ResultRejected)
	}

	path := e.reader.CPUPath(cpu, sysfs.FileOnline)
	if !e.reader.Exists(path) {
		logger.Warn().Msg("cpu has no online control")
		return e.finish(ctx, method, cpu, caller, nil, ResultRejected)
	}

	res := ResultOK
	if !e.writer.WriteValue(path, value) {
		res = ResultWriteFailed
	}
	return e.finish(ctx, method, cpu, caller, nil, res)
}

func (e *Engine) authorized(ctx context.Context, caller authz.Caller) bool {
	if e.gate == nil {
		return caller.Local
	}
	return e.gate.Authorize(ctx, caller, e.actionID)
}

func (e *Engine) precondition(ctx context.Context, caller authz.Caller, cpu int, logger zerolog.Logger) Result {
	if !e.authorized(ctx, caller) {
		logger.Warn().Str("caller", caller.Identity()).Msg("caller not authorized")
		return ResultRejected
	}
	if !e.reader.IsOnline(cpu) {
		logger.Warn().Msg("cpu not present or not online")
		return ResultRejected
	}
	return ResultOK
}

func (e *Engine) verifyRange(cpu, wantMin, wantMax int, logger zerolog.Logger) {
	got := e.reader.ScalingRange(cpu)
	if got.MinKHz != wantMin || got.MaxKHz != wantMax {
		logger.Info().Int("read_min", got.MinKHz).Int("read_max", got.MaxKHz).Msg("frequency range differs after write")
		return
	}
	logger.Debug().Msg("frequency range verified")
}

func (e *Engine) finish(ctx context.Context, method string, cpu int, caller authz.Caller, args map[string]string, res Result) Result {
	e.logger.Info().
		Str("method", method).
		Int("cpu", cpu).
		Str("caller", caller.Identity()).
		Int("result", int(res)).
		Msg("mutation finished")

	event, err := events.NewMutationEvent(events.Mutation{
		Method: method,
		CPU:    cpu,
		Args:   args,
		Caller: caller.Identity(),
		Result: int(res),
		At:     e.now(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("method", method).Msg("building mutation event")
		return res
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()
	if err := e.publisher.Publish(publishCtx, event); err != nil {
		e.logger.Warn().Err(err).Str("event_id", event.ID).Msg("publishing mutation event")
	}
	return res
}
