package modem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/cellat/capability"
)

// PollConfig defines configuration for polling operations like waiting for SIM readiness.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// Timeout is the maximum time to wait for the condition
	Timeout time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

// call runs sid and returns its typed response.
func call[T any](ctx context.Context, m *Modem, sid capability.SID, payload any) (T, error) {
	var zero T
	res, err := m.Send(ctx, sid, payload)
	if err != nil {
		return zero, err
	}
	v, ok := res.Response.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s answered %T", ErrUnexpectedResponse, sid, res.Response)
	}
	return v, nil
}

// Init performs the setup sequence of the modem: sanity check, variant
// configuration (echo, error reporting, registration reports) and SIM
// unlocking. The Loop must be running.
func (m *Modem) Init(ctx context.Context) error {
	if m.config.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.InitTimeout)
		defer cancel()
	}

	// 1. Wake-up / sanity check
	if err := m.CheckConnection(ctx); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	if _, err := m.Send(ctx, capability.SIDInit, nil); err != nil {
		return fmt.Errorf("configure modem: %w", err)
	}

	// 3. Check SIM status
	status, err := m.SIMStatus(ctx)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	switch {
	case status.Ready():
		// OK

	case status == "SIM PIN":
		if m.config.SimPIN == "" {
			return ErrSIMPinRequired
		}
		if _, err := m.Send(ctx, capability.SIDEnterPIN, m.config.SimPIN); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}

		// Wait until SIM becomes ready
		if err := m.WaitForSIMReady(ctx, PollConfig{}); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported SIM state: %q", status)
	}

	m.log.Info("modem initialized")
	return nil
}

// WaitForSIMReady polls the SIM card status until it reports ready state.
// This is necessary after entering a SIM PIN, as the SIM card needs time
// to authenticate and become operational.
func (m *Modem) WaitForSIMReady(ctx context.Context, config PollConfig) error {
	var (
		pollInterval = config.Interval
		timeout      = config.Timeout
		maxRetries   = config.MaxRetries
	)

	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = int(timeout / pollInterval)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	retries := 0

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("SIM not ready: %w", ctx.Err())
		case <-ticker.C:
			retries++
			if retries > maxRetries {
				return fmt.Errorf("SIM not ready after %d retries", maxRetries)
			}
			status, err := m.SIMStatus(ctx)
			if err != nil {
				// Fail fast on critical errors
				if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrNotInitialized) {
					return fmt.Errorf("SIM status check failed: %w", err)
				}
				continue
			}
			if status.Ready() {
				return nil
			}
		}
	}
}

// CheckConnection sends a bare AT and expects OK.
func (m *Modem) CheckConnection(ctx context.Context) error {
	_, err := m.Send(ctx, capability.SIDCheckConnection, nil)
	return err
}

func (m *Modem) DeviceInfo(ctx context.Context) (capability.DeviceInfo, error) {
	return call[capability.DeviceInfo](ctx, m, capability.SIDDeviceInfo, nil)
}

func (m *Modem) SignalQuality(ctx context.Context) (capability.SignalQuality, error) {
	return call[capability.SignalQuality](ctx, m, capability.SIDSignalQuality, nil)
}

// Registration queries the circuit, packet and EPS registration states.
func (m *Modem) Registration(ctx context.Context) (capability.RegistrationStatus, error) {
	return call[capability.RegistrationStatus](ctx, m, capability.SIDRegistration, nil)
}

func (m *Modem) SIMStatus(ctx context.Context) (capability.SIMStatus, error) {
	return call[capability.SIMStatus](ctx, m, capability.SIDSIMStatus, nil)
}

// Attach attaches to the packet domain.
func (m *Modem) Attach(ctx context.Context) (capability.AttachState, error) {
	return call[capability.AttachState](ctx, m, capability.SIDAttach, nil)
}

// Detach detaches from the packet domain.
func (m *Modem) Detach(ctx context.Context) (capability.AttachState, error) {
	return call[capability.AttachState](ctx, m, capability.SIDDetach, nil)
}

// ServingCell runs the variant's engineering mode query.
func (m *Modem) ServingCell(ctx context.Context) (capability.ServingCell, error) {
	return call[capability.ServingCell](ctx, m, capability.SIDEngineeringMode, nil)
}

// Direct sends cmd as is and returns the information lines of the answer.
// A zero timeout uses the configured AT timeout.
func (m *Modem) Direct(ctx context.Context, cmd string, timeout time.Duration) (capability.DirectResponse, error) {
	return call[capability.DirectResponse](ctx, m, capability.SIDDirectCommand, capability.DirectRequest{
		Command: cmd,
		Timeout: timeout,
	})
}

// Sleep asks the modem to enter its low power mode.
func (m *Modem) Sleep(ctx context.Context) error {
	_, err := m.Send(ctx, capability.SIDSleepRequest, nil)
	return err
}

// SleepComplete reports that the modem status line confirmed sleep.
func (m *Modem) SleepComplete(ctx context.Context) error {
	_, err := m.Send(ctx, capability.SIDSleepComplete, nil)
	return err
}

// CancelSleep withdraws a sleep request that has not completed.
func (m *Modem) CancelSleep(ctx context.Context) error {
	_, err := m.Send(ctx, capability.SIDSleepCancel, nil)
	return err
}

// Wakeup wakes a sleeping modem and waits for it to come back.
func (m *Modem) Wakeup(ctx context.Context) error {
	_, err := m.Send(ctx, capability.SIDWakeup, nil)
	return err
}
