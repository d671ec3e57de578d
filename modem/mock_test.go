package modem_test

import (
	"context"
	"testing"
	"time"

	"i4.energy/across/cellat/modem"

	_ "i4.energy/across/cellat/capability/bg96"
)

// ScriptBuilder assembles the exchanges a simulated BG96 answers.
type ScriptBuilder struct {
	exchanges []modem.Exchange
}

func NewScript() *ScriptBuilder {
	return &ScriptBuilder{}
}

func (b *ScriptBuilder) add(expect, reply string) *ScriptBuilder {
	b.exchanges = append(b.exchanges, modem.Exchange{Expect: expect, Reply: reply})
	return b
}

func (b *ScriptBuilder) AT() *ScriptBuilder {
	// echo is still on before ATE0
	return b.add("AT\r", "AT\r\r\nOK\r\n")
}

func (b *ScriptBuilder) Configure() *ScriptBuilder {
	return b.
		add("ATE0\r", "ATE0\r\r\nOK\r\n").
		add("AT+CMEE=1\r", "\r\nOK\r\n").
		add("AT+CREG=2\r", "\r\nOK\r\n").
		add("AT+CGREG=2\r", "\r\nOK\r\n").
		add("AT+CEREG=2\r", "\r\nOK\r\n")
}

func (b *ScriptBuilder) SimReady() *ScriptBuilder {
	return b.add("AT+CPIN?\r", "\r\n+CPIN: READY\r\n\r\nOK\r\n")
}

func (b *ScriptBuilder) SimPinRequired() *ScriptBuilder {
	return b.add("AT+CPIN?\r", "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n")
}

func (b *ScriptBuilder) EnterPIN(pin string) *ScriptBuilder {
	return b.add("AT+CPIN=\""+pin+"\"\r", "\r\nOK\r\n")
}

// Init is the whole successful setup sequence.
func (b *ScriptBuilder) Init() *ScriptBuilder {
	return b.AT().Configure().SimReady()
}

func (b *ScriptBuilder) Then(expect, reply string) *ScriptBuilder {
	return b.add(expect, reply)
}

func (b *ScriptBuilder) Build() []modem.Exchange {
	return b.exchanges
}

// startModem creates a modem over tr and runs its Loop until the test ends.
func startModem(t *testing.T, tr *modem.TestTransport, opts ...func(*modem.ConfigBuilder)) *modem.Modem {
	t.Helper()

	b := modem.NewConfigBuilder().
		WithDialer(modem.TestDialer{Transport: tr}).
		WithATTimeout(time.Second)
	for _, opt := range opts {
		opt(b)
	}
	config, err := b.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m, err := modem.New(ctx, config)
	if err != nil {
		cancel()
		t.Fatalf("failed to create modem: %v", err)
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		m.Close()
		<-loopDone
	})
	return m
}

// waitWritten waits until the transport received cmd.
func waitWritten(t *testing.T, tr *modem.TestTransport, cmd string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, w := range tr.Written() {
			if w == cmd {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%q never written, got %q", cmd, tr.Written())
}

func checkScript(t *testing.T, tr *modem.TestTransport) {
	t.Helper()
	if n := tr.Pending(); n != 0 {
		t.Errorf("%d scripted exchanges not written", n)
	}
	if u := tr.Unexpected(); len(u) != 0 {
		t.Errorf("unexpected writes: %q", u)
	}
}
