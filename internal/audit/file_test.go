package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileSink_RecordThenFlushWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	sink.Record(context.Background(), "dispatch", map[string]interface{}{"issue": "42"})
	require.NoError(t, sink.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &rec))
	require.Equal(t, "dispatch", rec.Kind)
	require.Equal(t, "42", rec.Fields["issue"])
	require.NotEmpty(t, rec.ID)
}

func TestFileSink_CloseFlushesPendingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), "heartbeat_tick", nil)
	}
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	count := 0
	for scanner.Scan() {
		count++
	}
	require.Equal(t, 5, count)
}

func TestFileSink_QueryFiltersByKindAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	sink.Record(ctx, "dispatch", map[string]interface{}{"issue": "1"})
	sink.Record(ctx, "model_selection", nil)
	sink.Record(ctx, "dispatch", map[string]interface{}{"issue": "2"})

	records, err := sink.Query(ctx, Query{Kind: "dispatch"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	limited, err := sink.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func TestFileSink_SubscribeReceivesLiveRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := sink.Subscribe(ctx)

	sink.Record(context.Background(), "dispatch", map[string]interface{}{"issue": "7"})

	select {
	case ev := <-ch:
		require.Equal(t, "dispatch", ev.Payload.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published record")
	}
}
