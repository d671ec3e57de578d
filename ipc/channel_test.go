package ipc_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/cellat/at"
	"i4.energy/across/cellat/ipc"
)

func isLF(b byte) bool { return b == '\n' }

func newChannel(t *testing.T, cfg ipc.Config) *ipc.Channel {
	t.Helper()
	if cfg.EndOfMessage == nil {
		cfg.EndOfMessage = isLF
	}
	ch, err := ipc.NewChannel(cfg)
	require.NoError(t, err)
	return ch
}

func writeString(t *testing.T, ch *ipc.Channel, s string) {
	t.Helper()
	for i := 0; i < len(s); i++ {
		require.NoError(t, ch.WriteByte(s[i]), "byte %d of %q", i, s)
	}
}

func TestReadSingleMessage(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 1600})

	writeString(t, ch, "OK\r\n")

	buf := make([]byte, 64)
	msg, err := ch.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, msg.Size)
	assert.Equal(t, "OK\r\n", string(msg.Payload))
	assert.Equal(t, 0, msg.Pending)
	assert.False(t, msg.Truncated())

	_, err = ch.ReadMessage(buf)
	assert.ErrorIs(t, err, ipc.ErrNoMessage)
}

func TestMessagesKeepOrder(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 128})
	lines := []string{"+CSQ: 15,99\r\n", "\r\n", "OK\r\n"}
	for _, l := range lines {
		writeString(t, ch, l)
	}
	assert.Equal(t, len(lines), ch.Unread())

	buf := make([]byte, 64)
	for i, l := range lines {
		msg, err := ch.ReadMessage(buf)
		require.NoError(t, err)
		assert.Equal(t, l, string(msg.Payload))
		assert.Equal(t, len(lines)-i-1, msg.Pending)
	}
}

func TestIncompleteMessageIsNotRead(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 64})
	writeString(t, ch, "+CREG: 2,")

	before := ch.Stats()
	_, err := ch.ReadMessage(make([]byte, 64))
	assert.ErrorIs(t, err, ipc.ErrNoMessage)

	after := ch.Stats()
	assert.Equal(t, before.Free, after.Free)
	assert.Equal(t, before.Used, after.Used)
	assert.Zero(t, after.Read)

	writeString(t, ch, "1\r\n")
	msg, err := ch.ReadMessage(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, "+CREG: 2,1\r\n", string(msg.Payload))
}

func TestFreePlusUsedIsCapacity(t *testing.T) {
	const capacity = 50
	ch := newChannel(t, ipc.Config{Capacity: capacity, PauseThreshold: 4})
	buf := make([]byte, capacity)

	check := func() {
		t.Helper()
		assert.Equal(t, capacity, ch.FreeBytes()+ch.UsedBytes())
	}

	// enough traffic to wrap the ring several times
	for i := 0; i < 40; i++ {
		line := strings.Repeat("x", i%9) + "\r\n"
		for j := 0; j < len(line); j++ {
			require.NoError(t, ch.WriteByte(line[j]))
			check()
		}
		msg, err := ch.ReadMessage(buf)
		require.NoError(t, err)
		assert.Equal(t, line, string(msg.Payload))
		check()
	}
}

func TestWrappedPayload(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 16, PauseThreshold: 1})
	buf := make([]byte, 16)

	writeString(t, ch, "abcdef\n")
	_, err := ch.ReadMessage(buf)
	require.NoError(t, err)

	// header at 9, payload runs past the end of the ring
	writeString(t, ch, "0123456\n")
	msg, err := ch.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, "0123456\n", string(msg.Payload))
}

func TestTruncatedRead(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 64})
	writeString(t, ch, "+CGMR: BG96MAR02A07M1G\r\n")
	writeString(t, ch, "OK\r\n")

	small := make([]byte, 5)
	msg, err := ch.ReadMessage(small)
	require.NoError(t, err)
	assert.Equal(t, 24, msg.Size)
	assert.Equal(t, "+CGMR", string(msg.Payload))
	assert.True(t, msg.Truncated())

	// the whole framed message was consumed
	msg, err = ch.ReadMessage(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, "OK\r\n", string(msg.Payload))
}

func TestPauseAndResume(t *testing.T) {
	var pauses, resumes int
	ch := newChannel(t, ipc.Config{
		Capacity:       300,
		PauseThreshold: 32,
		OnPause:        func(*ipc.Channel) { pauses++ },
		OnResume:       func(*ipc.Channel) { resumes++ },
	})
	line := strings.Repeat("A", 38) + "\r\n"

	for ch.State() == ipc.StateActive {
		writeString(t, ch, line)
	}
	assert.Equal(t, ipc.StatePaused, ch.State())
	assert.LessOrEqual(t, ch.FreeBytes(), 32)
	assert.Equal(t, 1, pauses)

	msg, err := ch.ReadMessage(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 40, msg.Size)
	assert.Greater(t, ch.FreeBytes(), 32)
	assert.Equal(t, ipc.StateActive, ch.State())
	assert.Equal(t, 1, resumes)
}

func TestNoDoublePause(t *testing.T) {
	var pauses int
	ch := newChannel(t, ipc.Config{
		Capacity:       64,
		PauseThreshold: 40,
		OnPause:        func(*ipc.Channel) { pauses++ },
	})

	writeString(t, ch, strings.Repeat("B", 20)+"\n")
	require.Equal(t, ipc.StatePaused, ch.State())

	// bytes keep arriving while paused until the source stops
	writeString(t, ch, strings.Repeat("C", 10)+"\n")
	assert.Equal(t, 1, pauses)

	st := ch.Stats()
	assert.Equal(t, uint64(1), st.Pauses)
	assert.Zero(t, st.Resumes)
}

func TestOverflowDropsBytes(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 16, PauseThreshold: 1})

	var dropped int
	for i := 0; i < 20; i++ {
		if err := ch.WriteByte('z'); err != nil {
			assert.ErrorIs(t, err, ipc.ErrOverflow)
			dropped++
		}
	}
	// 11 bytes fit, the 12th is dropped along with the partial line
	assert.Equal(t, 1, dropped)
	assert.Equal(t, uint64(1), ch.Stats().Overflows)
	assert.Equal(t, 16, ch.FreeBytes()+ch.UsedBytes())
	assert.Zero(t, ch.Unread())

	writeString(t, ch, "\n")
	msg, err := ch.ReadMessage(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, "zzzzzzzz\n", string(msg.Payload))
}

func TestOverflowKeepsCompleteMessages(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 16, PauseThreshold: 1})
	writeString(t, ch, "OK\n")

	for i := 0; i < 12; i++ {
		_ = ch.WriteByte('y')
	}
	assert.Positive(t, ch.Stats().Overflows)

	msg, err := ch.ReadMessage(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(msg.Payload))
}

func TestReadyCallback(t *testing.T) {
	var got []int
	ch := newChannel(t, ipc.Config{
		Capacity: 64,
		OnReady:  func(c *ipc.Channel) { got = append(got, c.Unread()) },
	})

	writeString(t, ch, "RDY\r\n")
	writeString(t, ch, "OK\r\n")
	assert.Equal(t, []int{1, 2}, got)

	var swapped int
	prev := ch.SwapReadyCallback(func(*ipc.Channel) { swapped++ })
	writeString(t, ch, "+CMTI: \"SM\",1\r\n")
	assert.Equal(t, 1, swapped)
	assert.Len(t, got, 2)

	ch.SwapReadyCallback(prev)
	writeString(t, ch, "OK\r\n")
	assert.Equal(t, []int{1, 2, 4}, got)
}

func TestReset(t *testing.T) {
	ch := newChannel(t, ipc.Config{Capacity: 64, PauseThreshold: 40})
	writeString(t, ch, strings.Repeat("D", 30)+"\n")
	require.Equal(t, ipc.StatePaused, ch.State())

	require.NoError(t, ch.Reset())
	assert.Equal(t, ipc.StateActive, ch.State())
	assert.Zero(t, ch.Unread())
	assert.Equal(t, 64-ipc.HeaderSize, ch.FreeBytes())

	writeString(t, ch, "OK\n")
	msg, err := ch.ReadMessage(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, "OK\n", string(msg.Payload))
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  ipc.Config
	}{
		{name: "No predicate", cfg: ipc.Config{Capacity: 64}},
		{name: "Tiny ring", cfg: ipc.Config{Capacity: 4, EndOfMessage: isLF}},
		{name: "Threshold above capacity", cfg: ipc.Config{Capacity: 64, PauseThreshold: 64, EndOfMessage: isLF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ipc.NewChannel(tt.cfg)
			assert.ErrorIs(t, err, ipc.ErrInvalidConfig)
		})
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	const messages = 2000
	paused := make(chan struct{}, 1)
	resumed := make(chan struct{}, 1)
	ready := make(chan struct{}, 1)

	ch := newChannel(t, ipc.Config{
		Capacity:       256,
		PauseThreshold: 64,
		OnPause:        func(*ipc.Channel) { signal(paused) },
		OnResume:       func(*ipc.Channel) { signal(resumed) },
		OnReady:        func(*ipc.Channel) { signal(ready) },
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < messages; i++ {
			line := []byte(strings.Repeat("m", i%50) + "\n")
			for _, b := range line {
				// honour backpressure the way a UART source would
				for ch.State() == ipc.StatePaused {
					<-resumed
				}
				if err := ch.WriteByte(b); err != nil {
					t.Errorf("write message %d: %v", i, err)
					return
				}
			}
		}
	}()

	buf := make([]byte, 64)
	for i := 0; i < messages; i++ {
		msg, err := ch.ReadMessage(buf)
		for err == ipc.ErrNoMessage {
			<-ready
			msg, err = ch.ReadMessage(buf)
		}
		require.NoError(t, err)
		want := strings.Repeat("m", i%50) + "\n"
		if !bytes.Equal([]byte(want), msg.Payload) {
			t.Fatalf("message %d = %q, want %q", i, msg.Payload, want)
		}
	}
	wg.Wait()
	assert.Zero(t, ch.Stats().FramingErrors)
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func TestResetRestartsFraming(t *testing.T) {
	var framer at.LineFramer
	var resets int
	ch := newChannel(t, ipc.Config{
		Capacity:     64,
		EndOfMessage: framer.EndOfMessage,
		OnReset: func(*ipc.Channel) {
			resets++
			framer.Reset()
		},
	})

	writeString(t, ch, "garbage")
	require.NoError(t, ch.Reset())
	assert.Equal(t, 1, resets)

	// a prompt opens a line only when the framer forgot the garbage
	writeString(t, ch, ">")
	msg, err := ch.ReadMessage(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, ">", string(msg.Payload))
}
