package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	commands  []string
	replies   map[string]string
	err       error
	deadlines map[string]time.Duration
}

func (l *fakeLink) SendCommand(command string) error {
	if l.err != nil {
		return l.err
	}
	l.commands = append(l.commands, command)
	return nil
}

func (l *fakeLink) Query(ctx context.Context, command string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if l.deadlines == nil {
			l.deadlines = make(map[string]time.Duration)
		}
		l.deadlines[command] = time.Until(deadline)
	}
	if err := l.SendCommand(command); err != nil {
		return "", err
	}
	return l.replies[command], nil
}

func TestSynthesizer_SetFrequency(t *testing.T) {
	link := &fakeLink{}
	s := NewSynthesizer(link, 0)

	require.NoError(t, s.SetFrequency(12.5))
	require.NoError(t, s.SetFrequency(16666.666667))
	assert.Equal(t, []string{"FREQ 12.5MHZ", "FREQ 16666.666667MHZ"}, link.commands)

	assert.Error(t, s.SetFrequency(0))
	assert.Error(t, s.SetFrequency(-1))
	assert.Len(t, link.commands, 2)
}

func TestSynthesizer_Frequency(t *testing.T) {
	link := &fakeLink{replies: map[string]string{
		"FREQ?": "1.25E+07\r",
		"*IDN?": "Agilent Technologies,E8257D,MY45141255,C.06.16",
	}}
	s := NewSynthesizer(link, 0)

	f, err := s.Frequency()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	id, err := s.Identify()
	require.NoError(t, err)
	assert.Contains(t, id, "E8257D")

	link.replies["FREQ?"] = "n/a"
	_, err = s.Frequency()
	assert.ErrorContains(t, err, "failed to parse frequency")
}

func TestPort_RoutesToInstruments(t *testing.T) {
	lockinLink := &fakeLink{replies: map[string]string{"OFLT?": "8", "SPTS?": "2", "TRCA? 1,0,2": "1,3"}}
	synthLink := &fakeLink{}
	p := NewPort(NewLockin(lockinLink, 0), NewSynthesizer(synthLink, 0))

	require.NoError(t, p.TuneSynthesizer(100))
	require.NoError(t, p.SetLockinSensitivity(3))
	require.NoError(t, p.SetLockinTimeConstant(8))
	tc, err := p.ReadLockinTimeConstant()
	require.NoError(t, err)
	assert.Equal(t, 8, tc)
	require.NoError(t, p.ClearLockinBuffer())
	require.NoError(t, p.ConfigureLockinSampleRate(SampleRate512Hz))
	require.NoError(t, p.SetLockinBufferMode(true))
	require.NoError(t, p.StartLockinBuffer())
	require.NoError(t, p.PauseLockinBuffer())
	n, err := p.QueryLockinSampleCount()
	require.NoError(t, err)
	samples, err := p.ReadLockinSamples(n)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3}, samples)

	assert.Equal(t, []string{"FREQ 100MHZ"}, synthLink.commands)
	assert.Equal(t, []string{
		"SENS 3", "OFLT 8", "OFLT?", "REST", "SRAT 13", "SEND 0", "STRT", "PAUS", "SPTS?", "TRCA? 1,0,2",
	}, lockinLink.commands)
}

func TestPort_PropagatesErrors(t *testing.T) {
	down := errors.New("no carrier")
	p := NewPort(NewLockin(&fakeLink{err: down}, 0), NewSynthesizer(&fakeLink{err: down}, 0))

	assert.ErrorIs(t, p.TuneSynthesizer(100), down)
	assert.ErrorIs(t, p.PauseLockinBuffer(), down)
	_, err := p.ReadLockinSamples(1)
	assert.ErrorIs(t, err, down)
}
