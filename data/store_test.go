package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

func testRecord(appID ledger.AppID, seller ledger.Address, status auction.Status, highestBid uint64) Record {
	rec := Record{
		AppID:      appID,
		Creator:    "registrar",
		Seller:     seller,
		Status:     status,
		BidAssetID: 7,
		MinBid:     10,
		HighestBid: highestBid,
		StartTime:  1_700_000_000,
		EndTime:    1_700_003_600,
		Holdings:   []Holding{{AssetID: 9, Amount: 1_000}},
		UpdatedAt:  time.Unix(1_700_000_100, 0).UTC(),
	}
	if highestBid > 0 {
		rec.HighestBidder = "bidder-a"
	}
	return rec
}

// requireRecordEqual compares records with updated_at normalized, since
// timestamps lose their location on a database round trip.
func requireRecordEqual(t *testing.T, want, got Record) {
	t.Helper()
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt),
		"updated_at: want %v, got %v", want.UpdatedAt, got.UpdatedAt)
	want.UpdatedAt, got.UpdatedAt = time.Time{}, time.Time{}
	require.Equal(t, want, got)
}

// runStoreSuite exercises the Store contract. Both implementations must
// pass it unchanged.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("UpsertAndGet", func(t *testing.T) {
		s := open(t)

		want := testRecord(1, "seller-a", auction.StatusCommitted, 25)
		require.NoError(t, s.UpsertAuction(want))

		got, err := s.GetAuction(1)
		require.NoError(t, err)
		requireRecordEqual(t, want, got)
	})

	t.Run("UpsertReplacesHoldings", func(t *testing.T) {
		s := open(t)

		rec := testRecord(1, "seller-a", auction.StatusNew, 0)
		rec.Holdings = []Holding{{AssetID: 9, Amount: 1_000}, {AssetID: 11, Amount: 5}}
		require.NoError(t, s.UpsertAuction(rec))

		rec.Status = auction.StatusCommitted
		rec.Holdings = []Holding{{AssetID: 9, Amount: 1_000}}
		require.NoError(t, s.UpsertAuction(rec))

		got, err := s.GetAuction(1)
		require.NoError(t, err)
		require.Equal(t, auction.StatusCommitted, got.Status)
		require.Equal(t, []Holding{{AssetID: 9, Amount: 1_000}}, got.Holdings)
	})

	t.Run("UpsertWithoutHoldings", func(t *testing.T) {
		s := open(t)

		rec := testRecord(1, "seller-a", auction.StatusFinalized, 25)
		rec.Holdings = nil
		require.NoError(t, s.UpsertAuction(rec))

		got, err := s.GetAuction(1)
		require.NoError(t, err)
		require.Empty(t, got.Holdings)
	})

	t.Run("GetUnknown", func(t *testing.T) {
		s := open(t)

		_, err := s.GetAuction(404)
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("SearchRanksByHighestBid", func(t *testing.T) {
		s := open(t)

		require.NoError(t, s.UpsertAuction(testRecord(1, "seller-a", auction.StatusCommitted, 25)))
		require.NoError(t, s.UpsertAuction(testRecord(2, "seller-b", auction.StatusCommitted, 100)))
		require.NoError(t, s.UpsertAuction(testRecord(3, "seller-a", auction.StatusCommitted, 100)))
		require.NoError(t, s.UpsertAuction(testRecord(4, "seller-a", auction.StatusNew, 0)))

		got, err := s.SearchAuctions(Filter{})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{2, 3, 1, 4}, appIDs(got))
	})

	t.Run("SearchFilters", func(t *testing.T) {
		s := open(t)

		require.NoError(t, s.UpsertAuction(testRecord(1, "seller-a", auction.StatusCommitted, 25)))
		require.NoError(t, s.UpsertAuction(testRecord(2, "seller-b", auction.StatusCommitted, 100)))
		require.NoError(t, s.UpsertAuction(testRecord(3, "seller-a", auction.StatusNew, 0)))

		got, err := s.SearchAuctions(Filter{Seller: "seller-a"})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{1, 3}, appIDs(got))

		got, err = s.SearchAuctions(Filter{Status: auction.StatusCommitted})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{2, 1}, appIDs(got))

		got, err = s.SearchAuctions(Filter{Status: auction.StatusCommitted, Seller: "seller-a"})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{1}, appIDs(got))

		got, err = s.SearchAuctions(Filter{Seller: "seller-z"})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("SearchPagination", func(t *testing.T) {
		s := open(t)

		for i := 1; i <= 5; i++ {
			require.NoError(t, s.UpsertAuction(testRecord(ledger.AppID(i), "seller-a", auction.StatusCommitted, uint64(10*i))))
		}

		got, err := s.SearchAuctions(Filter{Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{5, 4}, appIDs(got))

		got, err = s.SearchAuctions(Filter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Equal(t, []ledger.AppID{3, 2}, appIDs(got))

		got, err = s.SearchAuctions(Filter{Offset: 10})
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := open(t)

		require.NoError(t, s.UpsertAuction(testRecord(1, "seller-a", auction.StatusFinalized, 25)))
		require.NoError(t, s.DeleteAuction(1))

		_, err := s.GetAuction(1)
		require.ErrorIs(t, err, ledger.ErrNotFound)

		// Unknown deletes are no-ops.
		require.NoError(t, s.DeleteAuction(404))
	})
}

func appIDs(records []Record) []ledger.AppID {
	ids := make([]ledger.AppID, len(records))
	for i, rec := range records {
		ids[i] = rec.AppID
	}
	return ids
}

func TestRecordFromState(t *testing.T) {
	st := auction.State{
		Status:        auction.StatusCommitted,
		Seller:        "seller-a",
		BidAssetID:    7,
		MinBid:        10,
		HighestBidder: "bidder-a",
		HighestBid:    25,
		StartTime:     1_700_000_000,
		EndTime:       1_700_003_600,
	}
	holdings := []Holding{{AssetID: 7, Amount: 25}, {AssetID: 9, Amount: 1_000}}
	now := time.Unix(1_700_000_100, 0).UTC()

	rec := RecordFromState(42, "registrar", st, holdings, now)
	require.Equal(t, Record{
		AppID:         42,
		Creator:       "registrar",
		Seller:        "seller-a",
		Status:        auction.StatusCommitted,
		BidAssetID:    7,
		MinBid:        10,
		HighestBidder: "bidder-a",
		HighestBid:    25,
		StartTime:     1_700_000_000,
		EndTime:       1_700_003_600,
		Holdings:      holdings,
		UpdatedAt:     now,
	}, rec)
}
