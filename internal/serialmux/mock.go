package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestableSerialPort after Close.
var ErrPortClosed = errors.New("serial port closed")

// Responder answers a command written to a TestableSerialPort. An empty
// reply means the device stays silent, as instruments do for set commands.
type Responder func(command string) string

// TestableSerialPort implements SerialPorter with configurable behaviour for
// testing. Reads block until data is available or the port is closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	readCond *sync.Cond

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	pending  string

	// Respond, if set, is called for every complete line written.
	Respond Responder

	// Terminator is appended to every reply. Defaults to "\r".
	Terminator string

	// WriteLatency adds a delay to each Write call.
	WriteLatency time.Duration

	// WriteError is returned by the next Write call if set.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	closed     bool
	commands   []string
	writeCalls int
}

// NewTestableSerialPort creates a port that answers commands with respond.
func NewTestableSerialPort(respond Responder) *TestableSerialPort {
	p := &TestableSerialPort{Respond: respond, Terminator: "\r"}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data is available or the port is closed.
func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.readBuf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.closed {
		return 0, ErrPortClosed
	}
	return p.readBuf.Read(b)
}

// Write records the bytes and feeds each complete line to Respond.
func (p *TestableSerialPort) Write(b []byte) (int, error) {
	if p.WriteLatency > 0 {
		time.Sleep(p.WriteLatency)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	p.writeBuf.Write(b)
	p.pending += string(b)
	for {
		i := strings.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		cmd := strings.TrimRight(p.pending[:i], "\r")
		p.pending = p.pending[i+1:]
		p.commands = append(p.commands, cmd)
		if p.Respond == nil {
			continue
		}
		if reply := p.Respond(cmd); reply != "" {
			p.readBuf.WriteString(reply + p.Terminator)
			p.readCond.Broadcast()
		}
	}
	return len(b), nil
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// Inject queues unsolicited data for the next Read.
func (p *TestableSerialPort) Inject(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
	p.readCond.Broadcast()
}

// Commands returns every complete command written so far.
func (p *TestableSerialPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// WrittenData returns the raw bytes written to the port.
func (p *TestableSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// Closed reports whether Close has been called.
func (p *TestableSerialPort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// NewTestSerialMux returns a mux over a TestableSerialPort. The caller runs
// Monitor when queries need answering.
func NewTestSerialMux(name string, respond Responder) (*SerialMux[*TestableSerialPort], *TestableSerialPort) {
	port := NewTestableSerialPort(respond)
	return NewSerialMux(name, port), port
}
