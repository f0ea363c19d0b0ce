package utils

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPerformanceMetrics_Record(t *testing.T) {
	pm := NewPerformanceMetrics("fit")
	pm.Record(2 * time.Millisecond)
	pm.Record(4 * time.Millisecond)
	pm.Record(6 * time.Millisecond)

	assert.Equal(t, int64(3), pm.CallCount)
	assert.Equal(t, 2*time.Millisecond, pm.MinDuration)
	assert.Equal(t, 6*time.Millisecond, pm.MaxDuration)
	assert.Equal(t, 4*time.Millisecond, pm.AvgDuration)
	assert.Equal(t, 12*time.Millisecond, pm.TotalDuration)
}

func TestPerformanceMetrics_Concurrent(t *testing.T) {
	pm := NewPerformanceMetrics("period")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pm.Record(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), pm.CallCount)
	assert.Equal(t, time.Millisecond, pm.AvgDuration)
}

func TestPerformanceMetrics_LogMetrics(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	pm := NewPerformanceMetrics("empty")
	pm.LogMetrics(log)
	assert.Empty(t, buf.String())

	pm.Record(time.Second)
	pm.LogMetrics(log)
	assert.Contains(t, buf.String(), "Performance metrics summary")
	assert.Contains(t, buf.String(), `"call_count":1`)
}

func TestTimer_Stop(t *testing.T) {
	var buf bytes.Buffer
	timer := NewTimer("backtest", zerolog.New(&buf).Level(zerolog.DebugLevel))

	d := timer.Stop()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Contains(t, buf.String(), `"operation":"backtest"`)
}

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	done := OperationTimer("load_prices", zerolog.New(&buf).Level(zerolog.DebugLevel))
	done()
	assert.Contains(t, buf.String(), "Operation completed")
}
