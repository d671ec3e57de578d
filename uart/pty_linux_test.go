//go:build linux

package uart

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aymanbagabas/go-pty"
)

func TestSerialDialerOverPty(t *testing.T) {
	tty, err := pty.New()
	if err != nil {
		t.Skipf("no pseudo terminal available: %v", err)
	}
	defer tty.Close()

	transport, err := SerialDialer{PortName: tty.Name(), BaudRate: 9600}.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", tty.Name(), err)
	}
	defer transport.Close()

	port := NewPort(transport, PortConfig{})
	if err := port.Transmit(context.Background(), []byte("AT\r")); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}

	got := make([]byte, 3)
	read := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(tty, got)
		read <- err
	}()
	select {
	case err := <-read:
		if err != nil {
			t.Fatalf("reading pty master: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never reached the pty master")
	}
	if string(got) != "AT\r" {
		t.Errorf("modem side received %q, want %q", got, "AT\r")
	}
}
