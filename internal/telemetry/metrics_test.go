package telemetry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedMetrics_RecordExport(t *testing.T) {
	m := NewFeedMetrics("test", nil)

	m.RecordExport("main", "xml", 10, time.Second, nil)
	m.RecordExport("main", "xml", 5, time.Second, nil)
	m.RecordExport("main", "csv", 0, 0, errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExportsTotal.WithLabelValues("main", "xml", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportsTotal.WithLabelValues("main", "csv", "error")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues("main", "xml")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RecordsExported.WithLabelValues("main", "csv")))
}

func TestFeedMetrics_NilSafe(t *testing.T) {
	var m *FeedMetrics
	m.RecordExport("a", "xml", 1, time.Second, nil)
	m.RecordEnrichment("a", time.Second, 1, 2, 3, 4)
	m.RecordPublishFailure("a", "xml")
	m.RecordEvent(nil)
	assert.NoError(t, m.WriteTextfile("ignored"))
	assert.Nil(t, m.Registry())
}

func TestFeedMetrics_WriteTextfile(t *testing.T) {
	m := NewFeedMetrics("test", nil)
	m.RecordEnrichment("main", 2*time.Second, 3, 7, 1, 0)

	path := filepath.Join(t.TempDir(), "feedgen.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `test_feed_parent_cache_hits_total{profile="main"} 7`)
}
