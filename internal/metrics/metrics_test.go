package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afishacal/internal/pipeline"
)

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	sum := pipeline.Summary{Entries: 5, EmptyTitle: 1, BadDate: 1, Filtered: 1, Duplicates: 0, Events: 2}
	r.Observe(sum, nil, time.Unix(1700000000, 0), 1500*time.Millisecond)

	path := filepath.Join(t.TempDir(), "afishacal.prom")
	require.NoError(t, r.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "afishacal_entries 5")
	assert.Contains(t, text, `afishacal_skipped_entries{reason="bad_date"} 1`)
	assert.Contains(t, text, `afishacal_skipped_entries{reason="empty_title"} 1`)
	assert.Contains(t, text, "afishacal_events 2")
	assert.Contains(t, text, "afishacal_last_run_success 1")
	assert.Contains(t, text, "afishacal_last_run_timestamp_seconds 1.7e+09")
	assert.Contains(t, text, "afishacal_last_run_duration_seconds 1.5")
}

func TestRecorder_FailureKeepsLastCounts(t *testing.T) {
	r := NewRecorder()
	r.Observe(pipeline.Summary{Entries: 3, Events: 3}, nil, time.Unix(100, 0), time.Second)
	r.Observe(pipeline.Summary{}, errors.New("listing down"), time.Unix(200, 0), time.Second)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		if len(mf.GetMetric()) == 1 && mf.GetMetric()[0].GetGauge() != nil {
			values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 0.0, values["afishacal_last_run_success"])
	assert.Equal(t, 3.0, values["afishacal_events"])
	assert.Equal(t, 200.0, values["afishacal_last_run_timestamp_seconds"])
}

func TestRecorder_EmptyPathIsNoop(t *testing.T) {
	assert.NoError(t, NewRecorder().WriteTextfile(""))
}
