package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Link is a line-oriented command channel to one instrument.
type Link interface {
	SendCommand(command string) error
	Query(ctx context.Context, command string) (string, error)
}

// DefaultQueryTimeout bounds how long a query waits for its response line.
const DefaultQueryTimeout = 2 * time.Second

// DefaultLinkBaud is the lock-in's factory RS-232 rate.
const DefaultLinkBaud = 9600

// traceBytesPerSample is the widest ASCII sample TRCA? sends, including its
// comma, e.g. "-1.234567e-006,".
const traceBytesPerSample = 16

// Lockin drives an SR830-compatible lock-in amplifier.
type Lockin struct {
	link    Link
	timeout time.Duration
	baud    int
}

// NewLockin wraps a link. A non-positive timeout uses DefaultQueryTimeout.
func NewLockin(link Link, timeout time.Duration) *Lockin {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Lockin{link: link, timeout: timeout, baud: DefaultLinkBaud}
}

// SetBaudRate records the link rate used to budget buffer reads. A
// non-positive rate restores DefaultLinkBaud.
func (l *Lockin) SetBaudRate(baud int) {
	if baud <= 0 {
		baud = DefaultLinkBaud
	}
	l.baud = baud
}

// readTimeout allows the query timeout plus the time count samples take on
// the wire at 10 bits per byte.
func (l *Lockin) readTimeout(count int) time.Duration {
	size := float64(count * traceBytesPerSample)
	wire := time.Duration(size * 10 / float64(l.baud) * float64(time.Second))
	return l.timeout + wire
}

// Initialize routes responses to the serial interface.
func (l *Lockin) Initialize() error {
	if err := l.link.SendCommand("OUTX 0"); err != nil {
		return fmt.Errorf("failed to select serial output: %w", err)
	}
	return nil
}

// Identify returns the *IDN? response.
func (l *Lockin) Identify() (string, error) {
	return l.query("*IDN?")
}

func (l *Lockin) SetSensitivity(index int) error {
	if index < 0 || index >= NumSensitivities {
		return fmt.Errorf("sensitivity index %d out of range 0..%d", index, NumSensitivities-1)
	}
	return l.link.SendCommand(fmt.Sprintf("SENS %d", index))
}

func (l *Lockin) SetTimeConstant(index int) error {
	if index < 0 || index >= NumTimeConstants {
		return fmt.Errorf("time constant index %d out of range 0..%d", index, NumTimeConstants-1)
	}
	return l.link.SendCommand(fmt.Sprintf("OFLT %d", index))
}

func (l *Lockin) TimeConstant() (int, error) {
	resp, err := l.query("OFLT?")
	if err != nil {
		return 0, err
	}
	index, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time constant %q: %w", resp, err)
	}
	return index, nil
}

func (l *Lockin) ClearBuffer() error { return l.link.SendCommand("REST") }

func (l *Lockin) SetSampleRate(code int) error {
	if code < 0 || code > SampleRateTrigger {
		return fmt.Errorf("sample rate code %d out of range 0..%d", code, SampleRateTrigger)
	}
	return l.link.SendCommand(fmt.Sprintf("SRAT %d", code))
}

// SetBufferMode selects single-shot (stop when full) or loop buffering.
func (l *Lockin) SetBufferMode(singleShot bool) error {
	if singleShot {
		return l.link.SendCommand("SEND 0")
	}
	return l.link.SendCommand("SEND 1")
}

func (l *Lockin) StartBuffer() error { return l.link.SendCommand("STRT") }

func (l *Lockin) PauseBuffer() error { return l.link.SendCommand("PAUS") }

func (l *Lockin) SampleCount() (int, error) {
	resp, err := l.query("SPTS?")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("failed to parse sample count %q: %w", resp, err)
	}
	return n, nil
}

// ReadSamples reads count points from the start of the channel 1 buffer.
func (l *Lockin) ReadSamples(count int) ([]float64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", count)
	}
	resp, err := l.queryWithin(fmt.Sprintf("TRCA? 1,0,%d", count), l.readTimeout(count))
	if err != nil {
		return nil, err
	}
	return parseSamples(resp, count)
}

func (l *Lockin) query(command string) (string, error) {
	return l.queryWithin(command, l.timeout)
}

func (l *Lockin) queryWithin(command string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	resp, err := l.link.Query(ctx, command)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", command, err)
	}
	return strings.TrimSpace(resp), nil
}

// parseSamples parses the comma separated TRCA? response. A trailing comma
// is allowed.
func parseSamples(resp string, want int) ([]float64, error) {
	fields := strings.Split(strings.TrimSuffix(strings.TrimSpace(resp), ","), ",")
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d samples, got %d", want, len(fields))
	}
	samples := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse sample %d %q: %w", i, f, err)
		}
		samples[i] = v
	}
	return samples, nil
}
