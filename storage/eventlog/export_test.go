package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"p2pescrow/core/types"
)

func TestListAfterSeq(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sink.Append(ctx, &types.Event{Type: "escrow.offer.created"}))
	}
	records, err := sink.List(ctx, Filter{AfterSeq: 3})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(4), records[0].Seq)
}

func TestListClampsLimit(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	for i := 0; i < MaxListLimit+3; i++ {
		require.NoError(t, sink.Append(ctx, &types.Event{Type: "escrow.offer.created"}))
	}
	records, err := sink.List(ctx, Filter{Limit: MaxListLimit * 10})
	require.NoError(t, err)
	require.Len(t, records, MaxListLimit)

	records, err = sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, records, defaultListLimit)
}

func TestExportParquetPagesThroughAllRecords(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	total := exportBatchSize + 7
	for i := 0; i < total; i++ {
		evt := &types.Event{
			Type:       "escrow.dispute.vote_cast",
			Attributes: map[string]string{"disputeId": fmt.Sprintf("%02x", i%4)},
		}
		require.NoError(t, sink.Append(ctx, evt))
	}
	require.NoError(t, sink.Append(ctx, &types.Event{Type: "escrow.offer.created"}))

	var buf bytes.Buffer
	written, err := sink.ExportParquet(ctx, &buf, Filter{Type: "escrow.dispute.vote_cast", Limit: 1})
	require.NoError(t, err)
	require.Equal(t, total, written)

	data := buf.Bytes()
	require.Greater(t, len(data), 8)
	require.Equal(t, []byte("PAR1"), data[:4])
	require.Equal(t, []byte("PAR1"), data[len(data)-4:])
}

func TestExportParquetEmpty(t *testing.T) {
	sink := newTestSink(t)
	var buf bytes.Buffer
	written, err := sink.ExportParquet(context.Background(), &buf, Filter{})
	require.NoError(t, err)
	require.Zero(t, written)
}
