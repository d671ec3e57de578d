// Package lowpower negotiates sleep between the host and the modem.
//
// Two state machines run side by side. The host machine tracks what the
// host asked for (sleep, cancel, wakeup), the modem machine tracks what the
// modem reports through its status line and ring indicator. No command may
// be written to the modem while the modem machine is Sleeping.
package lowpower

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Host states.
const (
	HostIdle           = "idle"
	HostSleepRequired  = "sleep-required"
	HostSleepOngoing   = "sleep-ongoing"
	HostWakeupRequired = "wakeup-required"
	HostError          = "error"
)

// Modem states.
const (
	ModemIdle     = "idle"
	ModemSleeping = "sleeping"
	ModemError    = "error"
)

// Event is a low power event.
type Event string

const (
	SleepRequest       Event = "sleep-request"
	SleepCancel        Event = "sleep-cancel"
	SleepComplete      Event = "sleep-complete"
	HostWakeupRequest  Event = "host-wakeup-request"
	ModemWakeupRequest Event = "modem-wakeup-request"
	ModemEnterSleep    Event = "modem-enter-sleep"
	ModemLeaveSleep    Event = "modem-leave-sleep"

	fail Event = "fail"
)

// ErrInvalidEvent is returned when an event is not valid in the current
// state. The state is left unchanged.
var ErrInvalidEvent = errors.New("lowpower: invalid event")

// Machine holds the host and modem sleep state of one modem.
type Machine struct {
	name string

	mu    sync.Mutex
	host  *fsm.FSM
	modem *fsm.FSM
}

// New returns a machine with both sides Idle. name identifies the modem in
// log lines.
func New(name string) *Machine {
	m := &Machine{name: name}
	m.host = fsm.NewFSM(
		HostIdle,
		fsm.Events{
			{Name: string(SleepRequest), Src: []string{HostIdle}, Dst: HostSleepRequired},
			{Name: string(SleepCancel), Src: []string{HostSleepRequired}, Dst: HostIdle},
			{Name: string(SleepComplete), Src: []string{HostSleepRequired}, Dst: HostSleepOngoing},
			{Name: string(HostWakeupRequest), Src: []string{HostSleepOngoing}, Dst: HostWakeupRequired},
			{Name: string(ModemLeaveSleep), Src: []string{HostWakeupRequired, HostSleepOngoing}, Dst: HostIdle},
			{Name: string(ModemWakeupRequest), Src: []string{HostSleepOngoing, HostWakeupRequired}, Dst: HostIdle},
			{Name: string(fail), Src: []string{HostIdle, HostSleepRequired, HostSleepOngoing, HostWakeupRequired}, Dst: HostError},
		},
		fsm.Callbacks{
			"enter_state": m.onEnter("host"),
		},
	)
	m.modem = fsm.NewFSM(
		ModemIdle,
		fsm.Events{
			{Name: string(ModemEnterSleep), Src: []string{ModemIdle}, Dst: ModemSleeping},
			{Name: string(ModemLeaveSleep), Src: []string{ModemSleeping}, Dst: ModemIdle},
			{Name: string(ModemWakeupRequest), Src: []string{ModemSleeping}, Dst: ModemIdle},
			{Name: string(fail), Src: []string{ModemIdle, ModemSleeping}, Dst: ModemError},
		},
		fsm.Callbacks{
			"enter_state": m.onEnter("modem"),
		},
	)
	return m
}

func (m *Machine) onEnter(side string) fsm.Callback {
	return func(_ context.Context, e *fsm.Event) {
		Logger().Debug("low power transition",
			zap.String("modem", m.name),
			zap.String("side", side),
			zap.String("event", e.Event),
			zap.String("from", e.Src),
			zap.String("to", e.Dst),
		)
	}
}

// Fire applies ev to the machines that know it. Events shared by both sides
// (the modem leaving sleep, the modem asking for a wakeup) move each side
// that accepts them; the call fails only when no side does.
func (m *Machine) Fire(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	applied := false
	for _, f := range []*fsm.FSM{m.host, m.modem} {
		if !f.Can(string(ev)) {
			continue
		}
		if err := f.Event(ctx, string(ev)); err != nil {
			return fmt.Errorf("lowpower: %s: %w", ev, err)
		}
		applied = true
	}
	if !applied {
		return fmt.Errorf("%w: %s in host %s, modem %s", ErrInvalidEvent, ev, m.host.Current(), m.modem.Current())
	}
	return nil
}

// Can reports whether ev would be accepted.
func (m *Machine) Can(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host.Can(string(ev)) || m.modem.Can(string(ev))
}

// Fail moves both sides to their error state.
func (m *Machine) Fail(ctx context.Context, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	Logger().Warn("low power failure", zap.String("modem", m.name), zap.Error(cause))
	for _, f := range []*fsm.FSM{m.host, m.modem} {
		if f.Can(string(fail)) {
			_ = f.Event(ctx, string(fail))
		}
	}
}

// Reset returns both sides to Idle.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.host.SetState(HostIdle)
	m.modem.SetState(ModemIdle)
}

// Host returns the host state.
func (m *Machine) Host() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host.Current()
}

// Modem returns the modem state.
func (m *Machine) Modem() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modem.Current()
}

// Failed reports whether either side is in its error state. Only Reset
// leaves it.
func (m *Machine) Failed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host.Current() == HostError || m.modem.Current() == ModemError
}

// ModemAsleep reports whether the modem must not be sent commands.
func (m *Machine) ModemAsleep() bool {
	return m.Modem() == ModemSleeping
}

func (m *Machine) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("host=%s modem=%s", m.host.Current(), m.modem.Current())
}
