package mic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	running bool
	starts  int
	stops   int
	value   int16
}

func (f *fakeProvider) StartCapture() { f.running = true; f.starts++ }
func (f *fakeProvider) StopCapture()  { f.running = false; f.stops++ }
func (f *fakeProvider) Sample() int16 { return f.value }

func TestNoBackendReadsZero(t *testing.T) {
	s := NewRefcountedSource(nil)
	s.Start(ConsumerDSiDSP)
	require.Equal(t, int16(0), s.ReadSample())
}

func TestStartsOnlyOnFirstConsumer(t *testing.T) {
	p := &fakeProvider{value: 42}
	s := NewRefcountedSource(p)

	s.Start(ConsumerNDS)
	require.Equal(t, 1, p.starts)
	s.Start(ConsumerDSi)
	require.Equal(t, 1, p.starts, "a second concurrent consumer must not restart the backend")
	require.Equal(t, int16(42), s.ReadSample())
}

func TestStopsOnlyAfterLastConsumer(t *testing.T) {
	p := &fakeProvider{}
	s := NewRefcountedSource(p)

	s.Start(ConsumerNDS)
	s.Start(ConsumerDSiDSP)
	s.Stop(ConsumerNDS)
	require.True(t, p.running, "backend must stay running while DSi_DSP still holds it")

	s.Stop(ConsumerDSiDSP)
	require.False(t, p.running)
	require.Equal(t, 1, p.stops)
}

func TestDuplicateStartOrStopIsIdempotent(t *testing.T) {
	p := &fakeProvider{}
	s := NewRefcountedSource(p)

	s.Start(ConsumerDSiDSP)
	s.Start(ConsumerDSiDSP)
	require.Equal(t, 1, p.starts)

	s.Stop(ConsumerDSiDSP)
	s.Stop(ConsumerDSiDSP)
	require.Equal(t, 1, p.stops)
}
