package instrument

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Synthesizer drives a SCPI signal generator.
type Synthesizer struct {
	link    Link
	timeout time.Duration
}

// NewSynthesizer wraps a link. A non-positive timeout uses DefaultQueryTimeout.
func NewSynthesizer(link Link, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Synthesizer{link: link, timeout: timeout}
}

// SetFrequency sets the CW output frequency in MHz.
func (s *Synthesizer) SetFrequency(mhz float64) error {
	if mhz <= 0 {
		return fmt.Errorf("synthesizer frequency must be positive, got %g MHz", mhz)
	}
	return s.link.SendCommand("FREQ " + strconv.FormatFloat(mhz, 'f', -1, 64) + "MHZ")
}

// Frequency returns the CW output frequency in MHz.
func (s *Synthesizer) Frequency() (float64, error) {
	resp, err := s.query("FREQ?")
	if err != nil {
		return 0, err
	}
	hz, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frequency %q: %w", resp, err)
	}
	return hz / 1e6, nil
}

// Identify returns the *IDN? response.
func (s *Synthesizer) Identify() (string, error) {
	return s.query("*IDN?")
}

func (s *Synthesizer) query(command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.link.Query(ctx, command)
	if err != nil {
		return "", fmt.Errorf("query %q: %w", command, err)
	}
	return strings.TrimSpace(resp), nil
}
