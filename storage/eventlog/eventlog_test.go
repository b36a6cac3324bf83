package eventlog

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"p2pescrow/core/events"
	"p2pescrow/core/types"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sink, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })
	return sink
}

func TestSinkPersistsAndFilters(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	sink.Emit(events.Wrap(&types.Event{Type: "escrow.offer.created", Attributes: map[string]string{"offerId": "aa", "amount": "10"}}))
	sink.Emit(events.Wrap(&types.Event{Type: "escrow.offer.listed", Attributes: map[string]string{"offerId": "aa"}}))
	sink.Emit(events.Wrap(&types.Event{Type: "escrow.dispute.opened", Attributes: map[string]string{"offerId": "aa", "disputeId": "dd"}}))
	require.NoError(t, sink.Append(ctx, &types.Event{Type: "escrow.offer.created", Attributes: map[string]string{"offerId": "bb"}}))

	all, err := sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, rec := range all {
		require.Equal(t, int64(i+1), rec.Seq)
		require.NotEqual(t, uuid.Nil, rec.ID)
	}

	created, err := sink.List(ctx, Filter{Type: "escrow.offer.created"})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.Equal(t, "10", created[0].Attributes["amount"])

	byOffer, err := sink.List(ctx, Filter{OfferID: "aa", Limit: 2})
	require.NoError(t, err)
	require.Len(t, byOffer, 2)
	require.Equal(t, "escrow.offer.listed", byOffer[1].Type)

	byDispute, err := sink.List(ctx, Filter{DisputeID: "dd"})
	require.NoError(t, err)
	require.Len(t, byDispute, 1)
}

func TestSinkResumesSequence(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	first, err := New(db)
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), &types.Event{Type: "a"}))

	second, err := New(db)
	require.NoError(t, err)
	require.NoError(t, second.Append(context.Background(), &types.Event{Type: "b"}))
	records, err := second.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(2), records[1].Seq)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.Error(t, err)
}
