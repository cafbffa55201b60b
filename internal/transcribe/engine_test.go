package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vidgo/internal/services"
)

type fakeEngine struct {
	name         string
	availableErr error
	transcribe   func() (string, error)
	calls        int
}

func (f *fakeEngine) Descriptor() Descriptor { return Descriptor{Name: f.name} }

func (f *fakeEngine) Available(context.Context, map[string]string) error {
	return f.availableErr
}

func (f *fakeEngine) Transcribe(context.Context, map[string]string, Request) (string, error) {
	f.calls++
	return f.transcribe()
}

func okEngine(name, srt string) *fakeEngine {
	return &fakeEngine{name: name, transcribe: func() (string, error) { return srt, nil }}
}

func failingEngine(name string, err error) *fakeEngine {
	return &fakeEngine{name: name, transcribe: func() (string, error) { return "", err }}
}

func TestSelectorUsesPrimary(t *testing.T) {
	primary := okEngine("whispercpp", "primary srt")
	fallback := okEngine("openai_whisper", "fallback srt")
	selector := NewSelector(nil, primary, fallback)

	srt, err := selector.Transcribe(context.Background(),
		map[string]string{"asr.fallback_engine": "openai_whisper"}, Request{})
	require.NoError(t, err)
	require.Equal(t, "primary srt", srt)
	require.Zero(t, fallback.calls)
}

func TestSelectorFallsBackWhenPrimaryUnavailable(t *testing.T) {
	primary := okEngine("whispercpp", "")
	primary.availableErr = services.Wrap(services.ErrUnavailable, "test", "available", "no binary", nil)
	fallback := okEngine("remote_vidgo", "fallback srt")
	selector := NewSelector(nil, primary, fallback)

	srt, err := selector.Transcribe(context.Background(), map[string]string{
		"asr.primary_engine":  "whispercpp",
		"asr.fallback_engine": "remote_vidgo",
	}, Request{})
	require.NoError(t, err)
	require.Equal(t, "fallback srt", srt)
	require.Zero(t, primary.calls)
}

func TestSelectorFallsBackOnceOnRuntimeFailure(t *testing.T) {
	boom := services.Wrap(services.ErrExternalTool, "test", "transcribe", "crash", nil)
	primary := failingEngine("whispercpp", boom)
	fallback := failingEngine("openai_whisper", errors.New("also broken"))
	selector := NewSelector(nil, primary, fallback)

	_, err := selector.Transcribe(context.Background(),
		map[string]string{"asr.fallback_engine": "openai_whisper"}, Request{})
	require.Error(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, fallback.calls)
}

func TestSelectorWithoutFallbackReturnsPrimaryError(t *testing.T) {
	boom := services.Wrap(services.ErrExternalTool, "test", "transcribe", "crash", nil)
	selector := NewSelector(nil, failingEngine("whispercpp", boom))

	_, err := selector.Transcribe(context.Background(), map[string]string{}, Request{})
	require.ErrorIs(t, err, services.ErrExternalTool)
}

func TestSelectorKeepsPrimaryErrorWhenFallbackUnavailable(t *testing.T) {
	boom := services.Wrap(services.ErrExternalTool, "test", "transcribe", "crash", nil)
	primary := failingEngine("whispercpp", boom)
	fallback := okEngine("remote_vidgo", "never used")
	fallback.availableErr = services.Wrap(services.ErrUnavailable, "test", "available", "offline", nil)
	selector := NewSelector(nil, primary, fallback)

	_, err := selector.Transcribe(context.Background(),
		map[string]string{"asr.fallback_engine": "remote_vidgo"}, Request{})
	require.ErrorIs(t, err, services.ErrExternalTool)
	require.Zero(t, fallback.calls)
}

func TestSelectorIgnoresFallbackEqualToPrimary(t *testing.T) {
	boom := services.Wrap(services.ErrExternalTool, "test", "transcribe", "crash", nil)
	primary := failingEngine("whispercpp", boom)
	selector := NewSelector(nil, primary)

	_, err := selector.Transcribe(context.Background(),
		map[string]string{"asr.fallback_engine": "whispercpp"}, Request{})
	require.ErrorIs(t, err, services.ErrExternalTool)
	require.Equal(t, 1, primary.calls)
}

func TestSelectorRejectsUnknownPrimary(t *testing.T) {
	selector := NewSelector(nil, okEngine("whispercpp", ""))
	_, err := selector.Transcribe(context.Background(),
		map[string]string{"asr.primary_engine": "dictation9000"}, Request{})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestSelectorEngineListing(t *testing.T) {
	selector := NewSelector(nil, okEngine("whispercpp", ""), okEngine("remote_vidgo", ""))
	require.Equal(t, []string{"whispercpp", "remote_vidgo"}, selector.Engines())

	engine, ok := selector.Engine("remote_vidgo")
	require.True(t, ok)
	require.Equal(t, "remote_vidgo", engine.Descriptor().Name)

	_, ok = selector.Engine("missing")
	require.False(t, ok)
}
