package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/ipc"
	"i4.energy/across/cellat/uart"
)

// Modem represents a cellular modem driven with AT commands through a
// variant capability. All transport I/O and every transaction step run on
// a single event loop; the public methods only hand requests to it.
type Modem struct {
	// config contains the modem configuration settings
	config Config
	log    *zap.Logger

	// transport provides the physical connection to the modem (serial, pty, etc.)
	transport uart.Transport
	port      *uart.Port
	dev       *ipc.Device
	ch        *ipc.Channel

	cap    capability.Capability
	cctx   *capability.Context
	parser *Parser

	// ready is signalled from the receive path each time a message is framed
	ready chan struct{}
	// requests hands service requests to the Loop, one at a time
	requests chan *request
	// events runs control operations on the Loop
	events chan func()
	// urcChan receives forwarded unsolicited results
	urcChan chan capability.URC
	closing chan struct{}

	closed      atomic.Bool
	loopRunning atomic.Bool
	processing  atomic.Bool
	dataMode    atomic.Bool

	mu         sync.Mutex
	loopCancel context.CancelFunc

	// owned by the Loop
	cur    *request
	txURCs int
	step   *time.Timer
	stepC  <-chan time.Time
	rxBuf  []byte

	stats counters
}

type counters struct {
	requests      atomic.Uint64
	completed     atomic.Uint64
	failed        atomic.Uint64
	timeouts      atomic.Uint64
	aborted       atomic.Uint64
	urcs          atomic.Uint64
	urcsDropped   atomic.Uint64
	urcsIgnored   atomic.Uint64
	ignored       atomic.Uint64
	framingResets atomic.Uint64
}

// Result is the outcome of one service request.
type Result struct {
	Status   at.Status
	Response any
	// URCs is the number of unsolicited results forwarded while the
	// transaction was open.
	URCs int
}

// request is a service request executed by the Loop.
type request struct {
	ctx     context.Context
	sid     capability.SID
	payload any
	resp    chan response
}

type response struct {
	result Result
	err    error
}

// New creates a Modem with the given configuration. It resolves the
// variant, establishes the transport connection and opens the receive
// channel. New does not talk to the modem: start Loop, then call Init.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	c := config.Capability
	if c == nil {
		var err error
		if c, err = capability.New(config.Variant); err != nil {
			return nil, err
		}
	}

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	log := config.Logger.With(zap.String("device", config.DeviceID), zap.String("variant", c.Name()))
	m := &Modem{
		config:    config,
		log:       log,
		transport: transport,
		cap:       c,
		cctx:      capability.NewContext(log),
		ready:     make(chan struct{}, 1),
		requests:  make(chan *request),
		events:    make(chan func()),
		urcChan:   make(chan capability.URC, config.URCBuffer),
		closing:   make(chan struct{}),
		step:      time.NewTimer(time.Hour),
		rxBuf:     make([]byte, at.MaxBufferSize),
	}
	m.step.Stop()
	m.parser = NewParser(c, m.cctx, log)
	m.port = uart.NewPort(transport, uart.PortConfig{TxRetries: config.TxRetries, Logger: log})
	m.dev = ipc.NewDevice(config.DeviceID, m.port)

	m.ch, err = m.dev.Open(ipc.Config{
		Capacity:       config.RingCapacity,
		PauseThreshold: config.PauseThreshold,
		EndOfMessage:   func(b byte) bool { return c.EndOfMessage(m.cctx, b) },
		OnReady:        m.signalReady,
		OnReset:        func(*ipc.Channel) { m.cctx.ResetFramer() },
	})
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("open receive channel: %w", err)
	}

	if err := c.Init(m.cctx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("initialize %s: %w", c.Name(), err)
	}
	return m, nil
}

func (m *Modem) signalReady(*ipc.Channel) {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Loop is the main event loop that handles all transport I/O operations.
// It must be called exactly once after New() and before any other modem
// operation. The Loop:
//
// 1. Feeds received bytes to the receive channel from a reader goroutine
// 2. Starts service requests and writes the command of every step
// 3. Classifies each framed message through the variant
// 4. Dispatches URCs (Unsolicited Result Codes) to subscribers
// 5. Times out steps and returns results to waiting callers
//
// The Loop runs until the provided context is cancelled, the modem is
// closed or the transport fails. It's the ONLY goroutine that reads from
// the transport, so URCs are never lost between two requests.
//
// Usage:
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//
//	go m.Loop(ctx)
//
//	if err := m.Init(ctx); err != nil { return err }
func (m *Modem) Loop(ctx context.Context) error {
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)
	if m.closed.Load() {
		return ErrAlreadyClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.loopCancel = cancel
	m.mu.Unlock()

	readErrs := make(chan error, 1)
	go func() {
		readErrs <- m.port.Receive(ctx, m.dev.Receive)
	}()

	for {
		var txDone <-chan struct{}
		if m.cur != nil {
			txDone = m.cur.ctx.Done()
		}

		select {
		case <-ctx.Done():
			m.abort(ctx.Err())
			return ctx.Err()

		case req := <-m.requests:
			m.start(req)

		case <-m.ready:
			m.drain()

		case <-m.stepC:
			m.stepExpired()

		case <-txDone:
			m.abort(m.cur.ctx.Err())

		case fn := <-m.events:
			fn()

		case err := <-readErrs:
			// bytes framed before the failure are still delivered
			m.drain()
			switch {
			case errors.Is(err, io.EOF):
				m.abort(io.EOF)
				return io.EOF
			case ctx.Err() != nil:
				m.abort(ctx.Err())
				return ctx.Err()
			}
			m.abort(fmt.Errorf("read error: %w", err))
			return fmt.Errorf("read error: %w", err)
		}
	}
}

func (m *Modem) start(req *request) {
	m.stats.requests.Inc()
	if err := req.ctx.Err(); err != nil {
		req.resp <- response{result: Result{Status: at.StatusError}, err: err}
		return
	}
	if err := m.parser.ProcessRequest(req.sid, req.payload); err != nil {
		req.resp <- response{result: Result{Status: at.StatusError}, err: err}
		return
	}
	m.cur = req
	m.txURCs = 0
	m.advance()
}

// advance sends the command of the current step. Steps that wait for
// nothing are closed right away and the next one follows.
func (m *Modem) advance() {
	for m.cur != nil {
		act, wire, err := m.parser.NextCommand()
		if err != nil {
			m.parser.Abort()
			m.finish(Result{Status: at.StatusError}, err)
			return
		}
		if len(wire) > 0 {
			if err := m.port.Transmit(m.cur.ctx, wire); err != nil {
				m.parser.Abort()
				m.finish(Result{Status: at.StatusError}, fmt.Errorf("write command %q: %w", strings.TrimSpace(string(wire)), err))
				return
			}
		}
		if act.Waits() {
			m.arm(m.parser.Tx().Timeout)
			return
		}
		if a := m.parser.StepDone(); a.Kind() != at.ActionFrcContinue {
			m.complete(a)
			return
		}
	}
}

func (m *Modem) arm(d time.Duration) {
	if d == 0 {
		d = m.config.ATTimeout
	}
	if d < 0 {
		m.disarm()
		return
	}
	m.step.Reset(d)
	m.stepC = m.step.C
}

func (m *Modem) disarm() {
	m.step.Stop()
	m.stepC = nil
}

// stepExpired handles the end of a step wait. A tempo wait that elapses is
// a normal end of step; a mandatory answer that never came fails the
// transaction.
func (m *Modem) stepExpired() {
	m.stepC = nil
	if m.cur == nil {
		return
	}
	tx := m.parser.Tx()
	if tx.Answer == capability.AnswerOptional {
		m.dispatch(m.parser.StepDone(), nil)
		return
	}
	sid, step := tx.SID, tx.Step
	m.parser.Abort()
	m.log.Warn("no answer", zap.Stringer("sid", sid), zap.Int("step", step))
	m.finish(Result{Status: at.StatusTimeout}, fmt.Errorf("%w: %s step %d", ErrTimeout, sid, step))
}

// drain reads every complete message from the receive channel.
func (m *Modem) drain() {
	for {
		msg, err := m.ch.ReadMessage(m.rxBuf)
		switch {
		case errors.Is(err, ipc.ErrNoMessage), errors.Is(err, ipc.ErrClosed):
			return
		case err != nil:
			m.log.Error("receive channel desynchronized", zap.Error(err))
			m.stats.framingResets.Inc()
			_ = m.ch.Reset()
			if m.cur != nil {
				m.parser.Abort()
				m.finish(Result{Status: at.StatusError}, err)
			}
			return
		}
		if msg.Truncated() {
			m.log.Warn("message truncated", zap.Int("size", msg.Size), zap.Int("kept", len(msg.Payload)))
		}
		m.dispatch(m.parser.ParseResponse(msg.Payload), msg.Payload)
	}
}

// dispatch acts on a classification. Intermediate and ignored lines change
// nothing; in particular a URC never touches the step or its timer.
func (m *Modem) dispatch(act at.Action, line []byte) {
	switch act.Kind() {
	case at.ActionUrcForwarded:
		m.forwardURCs(line)
	case at.ActionUrcIgnored:
		m.stats.urcsIgnored.Inc()
	case at.ActionIgnored:
		m.stats.ignored.Inc()
	case at.ActionFrcContinue:
		m.disarm()
		m.advance()
	case at.ActionFrcEnd, at.ActionError:
		m.complete(act)
	}
	if act.DataMode() {
		m.dataMode.Store(true)
	}
}

func (m *Modem) complete(act at.Action) {
	resp, err := m.parser.Finish()
	if act.Kind() == at.ActionError && err == nil {
		err = at.ErrModemError
	}
	if err != nil {
		m.finish(Result{Status: at.StatusError, Response: resp}, err)
		return
	}
	status := at.StatusOK
	if m.txURCs > 0 {
		status = at.StatusOKPendingURC
	}
	m.finish(Result{Status: status, Response: resp}, nil)
}

// finish answers the current request.
func (m *Modem) finish(res Result, err error) {
	m.disarm()
	m.dataMode.Store(m.parser.DataMode())
	if m.cur == nil {
		return
	}
	res.URCs = m.txURCs
	switch {
	case err == nil:
		m.stats.completed.Inc()
	case res.Status == at.StatusTimeout:
		m.stats.timeouts.Inc()
	default:
		m.stats.failed.Inc()
	}
	m.log.Debug("transaction done", zap.Stringer("status", res.Status), zap.Error(err))
	m.cur.resp <- response{result: res, err: err}
	m.cur = nil
}

// abort ends the current transaction, if any, with cause.
func (m *Modem) abort(cause error) {
	if m.cur != nil {
		m.stats.aborted.Inc()
	}
	m.parser.Abort()
	status := at.StatusError
	if errors.Is(cause, context.DeadlineExceeded) {
		status = at.StatusTimeout
	}
	m.finish(Result{Status: status}, cause)
}

func (m *Modem) forwardURCs(line []byte) {
	forwarded := false
	for {
		u, ok := m.parser.NextURC()
		if !ok {
			break
		}
		m.publish(u)
		forwarded = true
	}
	if !forwarded && len(line) > 0 {
		m.publish(urcFromLine(line))
	}
}

func urcFromLine(line []byte) capability.URC {
	l := at.Trim(line)
	name := l
	if i := strings.IndexByte(l, ':'); i >= 0 {
		name = l[:i]
	}
	return capability.URC{Name: name, Line: l}
}

func (m *Modem) publish(u capability.URC) {
	m.stats.urcs.Inc()
	if m.cur != nil {
		m.txURCs++
	}
	select {
	case m.urcChan <- u:
	default:
		// URC channel is full
		m.stats.urcsDropped.Inc()
		m.log.Warn("URC dropped", zap.String("urc", u.Line))
	}
	if m.config.URCHandler != nil {
		m.config.URCHandler(u)
	}
}

// Send runs one service request and waits for its outcome. Only one
// request may be in progress: a concurrent Send fails with ErrBusy.
//
// ctx bounds the whole transaction. The Loop must be running.
func (m *Modem) Send(ctx context.Context, sid capability.SID, payload any) (Result, error) {
	if m.closed.Load() {
		return Result{}, ErrAlreadyClosed
	}
	if !m.processing.CompareAndSwap(false, true) {
		return Result{Status: at.StatusError}, ErrBusy
	}
	defer m.processing.Store(false)

	req := &request{
		ctx:     ctx,
		sid:     sid,
		payload: payload,
		resp:    make(chan response, 1), // Buffered to prevent blocking the Loop
	}

	select {
	case m.requests <- req:
	case <-ctx.Done():
		return Result{Status: at.StatusError}, fmt.Errorf("request cancelled before sending: %w", ctx.Err())
	case <-m.closing:
		return Result{}, ErrAlreadyClosed
	}

	// the Loop answers every accepted request, also when it stops
	select {
	case resp := <-req.resp:
		return resp.result, resp.err
	case <-m.closing:
		return Result{}, ErrAlreadyClosed
	}
}

// run executes fn on the Loop and waits for it.
func (m *Modem) run(ctx context.Context, fn func()) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	done := make(chan struct{})
	select {
	case m.events <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closing:
		return ErrAlreadyClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closing:
		return ErrAlreadyClosed
	}
}

// Abort ends the transaction in progress. Its caller gets ErrAborted and
// data mode is left.
func (m *Modem) Abort(ctx context.Context) error {
	return m.run(ctx, func() {
		m.abort(ErrAborted)
		m.dataMode.Store(false)
	})
}

// Reset drops everything buffered on the receive channel, aborts the
// transaction in progress and re-initializes the variant state.
func (m *Modem) Reset(ctx context.Context) error {
	var err error
	if rerr := m.run(ctx, func() {
		_ = m.ch.Reset()
		m.abort(ErrAborted)
		m.dataMode.Store(false)
		err = m.cap.Init(m.cctx)
	}); rerr != nil {
		return rerr
	}
	if err != nil {
		return fmt.Errorf("reinitialize %s: %w", m.cap.Name(), err)
	}
	return nil
}

// HardwareEvent reports a modem line change to the variant.
func (m *Modem) HardwareEvent(ctx context.Context, ev capability.HWEvent) error {
	return m.run(ctx, func() {
		m.dispatch(m.parser.HardwareEvent(ev), nil)
	})
}

// URC returns a read-only channel that receives Unsolicited Result Codes.
// These are asynchronous notifications from the modem (e.g., incoming SMS,
// network status changes, etc.). The channel is buffered, but may drop
// some URC if not consumed fast enough.
func (m *Modem) URC() <-chan capability.URC {
	return m.urcChan
}

// DataMode reports whether the modem left command mode.
func (m *Modem) DataMode() bool { return m.dataMode.Load() }

// Variant returns the name of the capability driving the modem.
func (m *Modem) Variant() string { return m.cap.Name() }

// DeviceID returns the configured physical identity.
func (m *Modem) DeviceID() string { return m.config.DeviceID }

// Close shuts down the modem and releases all resources.
// It stops the event loop, closes the transport connection, and marks
// the modem as closed. After calling Close(), the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(m.closing)

	// Stop the Loop if it's running
	m.mu.Lock()
	cancel := m.loopCancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	return m.port.Close()
}
