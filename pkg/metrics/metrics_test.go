package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderConcurrentUse(t *testing.T) {
	rec := NewRecorder(false, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Observe(Decode, time.Millisecond)
				rec.Inc(TickSkipped)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Samples(Decode), 400)
	assert.Equal(t, 400, rec.Count(TickSkipped))
}

func TestRecordKeepsOperationError(t *testing.T) {
	rec := NewRecorder(false, nil)
	boom := errors.New("boom")

	err := rec.Record(CameraOpen, func() error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Samples(CameraOpen), 1)
}

func TestNilRecorderIsSilent(t *testing.T) {
	var rec *Recorder
	rec.Observe(Decode, time.Second)
	rec.Inc(DecodeHit)
	rec.SessionEnded("success", time.Second)
	assert.Nil(t, rec.Samples(Decode))
	assert.Zero(t, rec.Count(DecodeHit))
	assert.Empty(t, Analyze(rec).Components)
}

func TestCollectorsFollowRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	rec := NewRecorder(false, c)

	rec.Inc(DecodeHit)
	rec.Inc(TickSkipped)
	rec.Inc(TickSkipped)
	rec.Observe(Decode, 5*time.Millisecond)
	rec.SessionEnded("cancelled", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Ticks.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Ticks.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Sessions.WithLabelValues("cancelled")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.DecodeSeconds))
	assert.Equal(t, 1, rec.Count(Session+"_cancelled"))
}

func TestCalculateStats(t *testing.T) {
	var ds []time.Duration
	for i := 1; i <= 100; i++ {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}

	s := CalculateStats(ds)

	require.Equal(t, 100, s.Count)
	assert.Equal(t, time.Millisecond, s.Min)
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 50*time.Millisecond, s.P50)
	assert.Equal(t, 95*time.Millisecond, s.P95)
	assert.Equal(t, 5*time.Millisecond, s.P5)
	assert.InDelta(t, float64(50500*time.Microsecond), float64(s.Mean), float64(time.Microsecond))
}

func TestAnalyze(t *testing.T) {
	rec := NewRecorder(false, nil)
	rec.Observe(Decode, 2*time.Millisecond)
	rec.Observe(Decode, 4*time.Millisecond)
	rec.Inc(DecodeEmpty)

	res := Analyze(rec)

	require.Contains(t, res.Components, Decode)
	assert.Equal(t, 2, res.Components[Decode].Count)
	assert.Equal(t, 1, res.Counters[DecodeEmpty])
	assert.Equal(t, []string{Decode}, rec.Names())
}
