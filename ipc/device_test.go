package ipc_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/cellat/ipc"
)

type flowRecorder struct {
	calls []string
}

func (f *flowRecorder) Pause()  { f.calls = append(f.calls, "pause") }
func (f *flowRecorder) Resume() { f.calls = append(f.calls, "resume") }

func receive(d *ipc.Device, s string) {
	for i := 0; i < len(s); i++ {
		d.Receive(s[i])
	}
}

func TestDeviceOpenAndSelect(t *testing.T) {
	flow := &flowRecorder{}
	dev := ipc.NewDevice("uart1", flow)

	first, err := dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)
	assert.Same(t, first, dev.Current())
	assert.Equal(t, ipc.StateActive, first.State())

	second, err := dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)
	assert.Same(t, first, dev.Current())
	assert.Same(t, second, dev.Inactive())
	assert.Equal(t, ipc.StateInitialized, second.State())

	_, err = dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	assert.ErrorIs(t, err, ipc.ErrNoFreeChannel)

	receive(dev, "OK\n")
	assert.Equal(t, 1, first.Unread())
	assert.Zero(t, second.Unread())

	require.NoError(t, dev.Select(second))
	assert.Same(t, second, dev.Current())
	assert.Equal(t, ipc.StateActive, second.State())

	receive(dev, "RDY\n")
	assert.Equal(t, 1, first.Unread(), "inactive channel must be left intact")
	assert.Equal(t, 1, second.Unread())

	msg, err := first.ReadMessage(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(msg.Payload))
}

func TestDeviceClose(t *testing.T) {
	dev := ipc.NewDevice("uart1", nil)
	first, err := dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)
	second, err := dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)

	require.NoError(t, dev.Close(first))
	assert.Equal(t, ipc.StateNotInitialized, first.State())
	assert.Same(t, second, dev.Current())
	assert.ErrorIs(t, dev.Close(first), ipc.ErrUnknownChannel)

	_, err = first.ReadMessage(make([]byte, 8))
	assert.ErrorIs(t, err, ipc.ErrClosed)

	require.NoError(t, dev.Close(second))
	assert.Nil(t, dev.Current())

	receive(dev, "lost\n")
	assert.Equal(t, uint64(5), dev.Dropped())

	// a slot freed by Close can be reused
	third, err := dev.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)
	assert.Same(t, third, dev.Current())
}

func TestDeviceBackpressure(t *testing.T) {
	flow := &flowRecorder{}
	dev := ipc.NewDevice("uart1", flow)
	ch, err := dev.Open(ipc.Config{Capacity: 64, PauseThreshold: 40, EndOfMessage: isLF})
	require.NoError(t, err)
	assert.Equal(t, []string{"resume"}, flow.calls)

	receive(dev, "+QENG: \"servingcell\",\"NOCONN\"\n")
	require.Equal(t, ipc.StatePaused, ch.State())
	assert.Equal(t, []string{"resume", "pause"}, flow.calls)

	_, err = ch.ReadMessage(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, ipc.StateActive, ch.State())
	assert.Equal(t, []string{"resume", "pause", "resume"}, flow.calls)
}

func TestDeviceSelectForeignChannel(t *testing.T) {
	dev := ipc.NewDevice("uart1", nil)
	other := ipc.NewDevice("uart2", nil)
	ch, err := other.Open(ipc.Config{Capacity: 64, EndOfMessage: isLF})
	require.NoError(t, err)

	assert.ErrorIs(t, dev.Select(ch), ipc.ErrUnknownChannel)
	assert.ErrorIs(t, dev.Select(nil), ipc.ErrUnknownChannel)
}

func TestDevicePartialLineNeverPauses(t *testing.T) {
	flow := &flowRecorder{}
	dev := ipc.NewDevice("uart1", flow)
	ch, err := dev.Open(ipc.Config{Capacity: 64, PauseThreshold: 40, EndOfMessage: isLF})
	require.NoError(t, err)

	// longer than the ring: the line is dropped on overflow and framing
	// goes on with the bytes that follow
	receive(dev, strings.Repeat("x", 100))
	assert.Equal(t, ipc.StateActive, ch.State())
	assert.Equal(t, []string{"resume"}, flow.calls)
	assert.Equal(t, uint64(1), ch.Stats().Overflows)

	receive(dev, "\r\nOK\n")
	var got []string
	buf := make([]byte, 64)
	for {
		msg, err := ch.ReadMessage(buf)
		if err != nil {
			require.ErrorIs(t, err, ipc.ErrNoMessage)
			break
		}
		got = append(got, string(msg.Payload))
	}
	assert.Equal(t, []string{strings.Repeat("x", 40) + "\r\n", "OK\n"}, got)
}

func TestDeviceResumesWhenLastMessageIsRead(t *testing.T) {
	flow := &flowRecorder{}
	dev := ipc.NewDevice("uart1", flow)
	ch, err := dev.Open(ipc.Config{Capacity: 64, PauseThreshold: 40, EndOfMessage: isLF})
	require.NoError(t, err)

	receive(dev, "A\n")
	receive(dev, strings.Repeat("x", 30))
	require.Equal(t, ipc.StatePaused, ch.State())

	// the partial line still holds the ring below the threshold, but
	// nothing is left for the consumer to free
	_, err = ch.ReadMessage(make([]byte, 8))
	require.NoError(t, err)
	assert.LessOrEqual(t, ch.FreeBytes(), 40)
	assert.Equal(t, ipc.StateActive, ch.State())
	assert.Equal(t, []string{"resume", "pause", "resume"}, flow.calls)

	receive(dev, "\n")
	msg, err := ch.ReadMessage(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 30)+"\n", string(msg.Payload))
}
