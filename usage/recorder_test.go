package usage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesense-ai/pagesense/metrics"
)

type captureSink struct {
	mu      sync.Mutex
	records []Record
	started chan struct{}
	release chan struct{}
}

func (c *captureSink) sink(ctx context.Context, rec Record) error {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

func TestRecorderPersistsRecords(t *testing.T) {
	cs := &captureSink{}
	r := NewBufferedRecorder(cs.sink)

	r.Record("u1", 5, 2, "agent_execution", map[string]any{"operation": "direct_answer"})
	r.Record("u1", 100, 30, "agent_execution", nil)
	r.Close()

	records := cs.all()
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].UserID)
	assert.Equal(t, 5, records[0].InputTokens)
	assert.Equal(t, 2, records[0].OutputTokens)
	assert.Equal(t, "agent_execution", records[0].APIType)
	assert.Equal(t, "direct_answer", records[0].Metadata["operation"])
	assert.False(t, records[0].RecordedAt.IsZero())
}

func TestRecorderDropsOldestOnOverflow(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 8)
	cs := &captureSink{release: release, started: started}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := NewBufferedRecorder(cs.sink, func(o *RecorderOptions) {
		o.BufferSize = 2
		o.Metrics = m
	})

	// First record is pulled by the worker and parked on the release
	// channel; the next two fill the buffer.
	r.Record("first", 1, 1, "agent_execution", nil)
	<-started
	r.Record("second", 2, 2, "agent_execution", nil)
	r.Record("third", 3, 3, "agent_execution", nil)
	// Overflow: the oldest queued record must be evicted.
	r.Record("fourth", 4, 4, "agent_execution", nil)

	close(release)
	r.Close()

	records := cs.all()
	users := make([]string, 0, len(records))
	for _, rec := range records {
		users = append(users, rec.UserID)
	}
	assert.Contains(t, users, "first")
	assert.Contains(t, users, "fourth")
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.UsageRecordsDropped), float64(1))
}

func TestRecorderSwallowsSinkErrors(t *testing.T) {
	r := NewBufferedRecorder(func(ctx context.Context, rec Record) error {
		return errors.New("db unavailable")
	})

	r.Record("u1", 10, 5, "agent_execution", nil)
	// Close must still drain without surfacing the error.
	r.Close()
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	cs := &captureSink{}
	r := NewBufferedRecorder(cs.sink)
	r.Close()
	r.Close()
}
