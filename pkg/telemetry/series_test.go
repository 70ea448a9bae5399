package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celltrace/celltrace-go/pkg/candb/bmsdb"
	"github.com/celltrace/celltrace-go/pkg/frame"
)

func TestSeriesRecordAndLatest(t *testing.T) {
	s := NewSeries(10)
	base := time.Now()

	s.Record("BMS_Pack_Voltage", base, 400.0)
	s.Record("BMS_Pack_Voltage", base.Add(time.Second), 399.5)

	latest, ok := s.Latest("BMS_Pack_Voltage")
	require.True(t, ok)
	assert.Equal(t, 399.5, latest.Value)

	_, ok = s.Latest("BMS_Pack_Current")
	assert.False(t, ok)
}

func TestSeriesRingEviction(t *testing.T) {
	s := NewSeries(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		s.Record("sig", base.Add(time.Duration(i)*time.Second), float64(i))
	}

	samples := s.Samples("sig")
	require.Len(t, samples, 3)
	assert.Equal(t, 2.0, samples[0].Value)
	assert.Equal(t, 4.0, samples[2].Value)

	latest, ok := s.Latest("sig")
	require.True(t, ok)
	assert.Equal(t, 4.0, latest.Value)
}

func TestSeriesTracksOnlyNamedSignals(t *testing.T) {
	db := bmsdb.New()
	s := NewSeries(10, "BMS_Pack_Voltage")

	f, err := frame.EncodeFrame(db, "PACK_MSG", map[string]float64{
		"BMS_Pack_Voltage": 401.2,
		"BMS_Pack_Current": -3.0,
	})
	require.NoError(t, err)
	f.Timestamp = time.Now()

	m, values, err := frame.DecodeFrame(db, f)
	require.NoError(t, err)
	s.HandleDecoded(f, m, values)

	assert.Equal(t, []string{"BMS_Pack_Voltage"}, s.Signals())

	latest, ok := s.Latest("BMS_Pack_Voltage")
	require.True(t, ok)
	assert.InDelta(t, 401.2, latest.Value, 0.0001)
}

func TestSeriesTracksAllByDefault(t *testing.T) {
	s := NewSeries(10)
	s.Record("b", time.Now(), 1)
	s.Record("a", time.Now(), 2)

	assert.Equal(t, []string{"a", "b"}, s.Signals())
}

func TestSeriesDownsample(t *testing.T) {
	s := NewSeries(100)
	base := time.Now()
	for i := 0; i < 100; i++ {
		s.Record("v", base.Add(time.Duration(i)*time.Second), float64(i))
	}

	out := s.Downsample("v", 10)
	require.Len(t, out, 10)
	assert.Equal(t, 0.0, out[0].Value)
	assert.Equal(t, 99.0, out[9].Value)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Value, out[i-1].Value)
	}

	// Fewer samples than max come back unchanged.
	assert.Len(t, s.Downsample("v", 200), 100)
	assert.Nil(t, s.Downsample("missing", 10))
}
