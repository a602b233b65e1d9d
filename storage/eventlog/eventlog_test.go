package eventlog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flightsurety/core/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Record(ctx, []*types.Event{
		types.NewEvent("flight.registered").With("flightKey", "0x01").With("designator", "F1"),
		types.NewEvent("insurance.purchased").With("flightKey", "0x01"),
	}))
	require.NoError(t, store.Record(ctx, []*types.Event{
		types.NewEvent("flight.registered").With("flightKey", "0x02").With("designator", "F2"),
	}))
	require.NoError(t, store.Record(ctx, nil))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, entry := range all {
		require.Equal(t, uint64(i+1), entry.Seq)
	}
	require.Equal(t, "F1", all[0].Event.Attributes["designator"])

	flights, err := store.List(ctx, Filter{Type: "flight.registered"})
	require.NoError(t, err)
	require.Len(t, flights, 2)

	byKey, err := store.List(ctx, Filter{FlightKey: "0x01"})
	require.NoError(t, err)
	require.Len(t, byKey, 2)

	after, err := store.List(ctx, Filter{AfterSeq: 2})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "0x02", after[0].Event.Attributes["flightKey"])

	page, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
}
