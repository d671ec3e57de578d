package lowpower_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"i4.energy/across/cellat/lowpower"
)

func TestSleepAndHostWakeup(t *testing.T) {
	ctx := context.Background()
	m := lowpower.New("bg96")

	steps := []struct {
		event lowpower.Event
		host  string
		modem string
	}{
		{lowpower.SleepRequest, lowpower.HostSleepRequired, lowpower.ModemIdle},
		{lowpower.SleepComplete, lowpower.HostSleepOngoing, lowpower.ModemIdle},
		{lowpower.ModemEnterSleep, lowpower.HostSleepOngoing, lowpower.ModemSleeping},
		{lowpower.HostWakeupRequest, lowpower.HostWakeupRequired, lowpower.ModemSleeping},
		{lowpower.ModemLeaveSleep, lowpower.HostIdle, lowpower.ModemIdle},
	}

	for _, s := range steps {
		require.NoError(t, m.Fire(ctx, s.event), "event %s", s.event)
		assert.Equal(t, s.host, m.Host(), "host after %s", s.event)
		assert.Equal(t, s.modem, m.Modem(), "modem after %s", s.event)
	}
}

func TestModemWakeupRequest(t *testing.T) {
	ctx := context.Background()
	m := lowpower.New("bg96")
	require.NoError(t, m.Fire(ctx, lowpower.SleepRequest))
	require.NoError(t, m.Fire(ctx, lowpower.SleepComplete))
	require.NoError(t, m.Fire(ctx, lowpower.ModemEnterSleep))
	require.True(t, m.ModemAsleep())

	require.NoError(t, m.Fire(ctx, lowpower.ModemWakeupRequest))
	assert.Equal(t, lowpower.HostIdle, m.Host())
	assert.Equal(t, lowpower.ModemIdle, m.Modem())
	assert.False(t, m.ModemAsleep())
}

func TestSleepCancel(t *testing.T) {
	ctx := context.Background()
	m := lowpower.New("bg96")
	require.NoError(t, m.Fire(ctx, lowpower.SleepRequest))
	require.True(t, m.Can(lowpower.SleepCancel))
	require.NoError(t, m.Fire(ctx, lowpower.SleepCancel))
	assert.Equal(t, lowpower.HostIdle, m.Host())
}

func TestInvalidEventKeepsState(t *testing.T) {
	tests := []struct {
		name  string
		setup []lowpower.Event
		event lowpower.Event
	}{
		{name: "Cancel while idle", event: lowpower.SleepCancel},
		{name: "Complete without request", event: lowpower.SleepComplete},
		{name: "Wakeup while awake", event: lowpower.HostWakeupRequest},
		{name: "Leave sleep while awake", event: lowpower.ModemLeaveSleep},
		{
			name:  "Second sleep request",
			setup: []lowpower.Event{lowpower.SleepRequest},
			event: lowpower.SleepRequest,
		},
		{
			name:  "Modem sleeps twice",
			setup: []lowpower.Event{lowpower.ModemEnterSleep},
			event: lowpower.ModemEnterSleep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := lowpower.New("bg96")
			for _, ev := range tt.setup {
				require.NoError(t, m.Fire(ctx, ev))
			}
			host, modem := m.Host(), m.Modem()

			assert.False(t, m.Can(tt.event))
			err := m.Fire(ctx, tt.event)
			assert.True(t, errors.Is(err, lowpower.ErrInvalidEvent), "got %v", err)
			assert.Equal(t, host, m.Host())
			assert.Equal(t, modem, m.Modem())
		})
	}
}

func TestFailAndReset(t *testing.T) {
	ctx := context.Background()
	m := lowpower.New("bg96")
	require.NoError(t, m.Fire(ctx, lowpower.SleepRequest))

	assert.False(t, m.Failed())
	m.Fail(ctx, errors.New("status pin stuck"))
	assert.True(t, m.Failed())
	assert.Equal(t, lowpower.HostError, m.Host())
	assert.Equal(t, lowpower.ModemError, m.Modem())
	assert.Error(t, m.Fire(ctx, lowpower.SleepCancel))

	m.Reset()
	assert.False(t, m.Failed())
	assert.Equal(t, lowpower.HostIdle, m.Host())
	assert.Equal(t, lowpower.ModemIdle, m.Modem())
	assert.Equal(t, "host=idle modem=idle", m.String())
}

func TestTransitionsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lowpower.SetLogger(zap.New(core))
	t.Cleanup(func() { lowpower.SetLogger(nil) })

	m := lowpower.New("bg96")
	require.NoError(t, m.Fire(context.Background(), lowpower.ModemEnterSleep))

	entries := logs.FilterMessage("low power transition").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "modem", fields["side"])
	assert.Equal(t, "sleeping", fields["to"])
}
