package modem

import (
	"context"
	"io"
	"sync"

	"i4.energy/across/cellat/uart"
)

// Exchange is one scripted command and the bytes the simulated modem sends
// back when it is written. An empty Reply sends nothing.
type Exchange struct {
	Expect string
	Reply  string
}

// TestTransport is a test helper that simulates a blocking transport using channels.
// This is needed because the Loop's reader goroutine continuously reads from the transport,
// and we need reads to block until data is available (like a real serial port would).
//
// Writes are matched against a script of exchanges; a match queues its
// reply for reading.
type TestTransport struct {
	mu         sync.Mutex
	readChan   chan []byte
	closed     bool
	script     []Exchange
	written    []string
	unexpected []string

	// rest of a chunk longer than the last Read buffer; reader only
	rest []byte
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport(script ...Exchange) *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
		script:   script,
	}
}

// Expect appends exchanges to the script.
func (t *TestTransport) Expect(script ...Exchange) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, script...)
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	cmd := string(p)
	t.written = append(t.written, cmd)
	if len(t.script) == 0 || t.script[0].Expect != cmd {
		t.unexpected = append(t.unexpected, cmd)
		return len(p), nil
	}
	reply := t.script[0].Reply
	t.script = t.script[1:]
	if reply != "" {
		t.readChan <- []byte(reply)
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.rest) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.rest = data
	}
	n = copy(p, t.rest)
	t.rest = t.rest[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Written returns every write received so far.
func (t *TestTransport) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.written...)
}

// Unexpected returns the writes that matched no scripted exchange.
func (t *TestTransport) Unexpected() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.unexpected...)
}

// Pending returns the number of scripted exchanges not yet written.
func (t *TestTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.script)
}

// TestDialer hands out a fixed transport.
type TestDialer struct {
	Transport *TestTransport
}

func (d TestDialer) Dial(ctx context.Context) (uart.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Transport, nil
}
