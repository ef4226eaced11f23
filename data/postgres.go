package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// PostgresStore implements Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database at dsn and runs schema migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		app_id BIGINT PRIMARY KEY,
		creator VARCHAR(128) NOT NULL,
		seller VARCHAR(128) NOT NULL,
		status BIGINT NOT NULL,
		bid_asset_id BIGINT NOT NULL,
		min_bid BIGINT NOT NULL,
		highest_bidder VARCHAR(128) NOT NULL DEFAULT '',
		highest_bid BIGINT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS auction_holdings (
		app_id BIGINT NOT NULL REFERENCES auctions(app_id) ON DELETE CASCADE,
		asset_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		PRIMARY KEY (app_id, asset_id)
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status);
	CREATE INDEX IF NOT EXISTS idx_auctions_seller ON auctions(seller);
	CREATE INDEX IF NOT EXISTS idx_auctions_highest_bid ON auctions(highest_bid DESC, app_id);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// UpsertAuction writes the record and replaces its holdings in one
// transaction.
func (s *PostgresStore) UpsertAuction(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO auctions
		(app_id, creator, seller, status, bid_asset_id, min_bid, highest_bidder, highest_bid, start_time, end_time, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (app_id) DO UPDATE SET
		creator = EXCLUDED.creator,
		seller = EXCLUDED.seller,
		status = EXCLUDED.status,
		bid_asset_id = EXCLUDED.bid_asset_id,
		min_bid = EXCLUDED.min_bid,
		highest_bidder = EXCLUDED.highest_bidder,
		highest_bid = EXCLUDED.highest_bid,
		start_time = EXCLUDED.start_time,
		end_time = EXCLUDED.end_time,
		updated_at = EXCLUDED.updated_at
	`

	if _, err := tx.ExecContext(ctx, query,
		int64(rec.AppID),
		string(rec.Creator),
		string(rec.Seller),
		int64(rec.Status),
		int64(rec.BidAssetID),
		int64(rec.MinBid),
		string(rec.HighestBidder),
		int64(rec.HighestBid),
		int64(rec.StartTime),
		int64(rec.EndTime),
		rec.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upserting auction %d: %w", rec.AppID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM auction_holdings WHERE app_id = $1", int64(rec.AppID)); err != nil {
		return fmt.Errorf("clearing holdings for auction %d: %w", rec.AppID, err)
	}
	for _, h := range rec.Holdings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO auction_holdings (app_id, asset_id, amount) VALUES ($1, $2, $3)",
			int64(rec.AppID), int64(h.AssetID), int64(h.Amount),
		); err != nil {
			return fmt.Errorf("inserting holding for auction %d: %w", rec.AppID, err)
		}
	}

	return tx.Commit()
}

// GetAuction retrieves one record.
func (s *PostgresStore) GetAuction(appID ledger.AppID) (Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT app_id, creator, seller, status, bid_asset_id, min_bid, highest_bidder, highest_bid, start_time, end_time, updated_at
		FROM auctions
		WHERE app_id = $1
	`, int64(appID))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("auction %d: %w", appID, ledger.ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}

	holdings, err := s.loadHoldings(ctx, []ledger.AppID{appID})
	if err != nil {
		return Record{}, err
	}
	rec.Holdings = holdings[appID]
	return rec, nil
}

// SearchAuctions returns records matching the filter, ranked by highest bid
// descending.
func (s *PostgresStore) SearchAuctions(f Filter) ([]Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := `
		SELECT app_id, creator, seller, status, bid_asset_id, min_bid, highest_bidder, highest_bid, start_time, end_time, updated_at
		FROM auctions
	`
	var conds []string
	var args []any
	if f.Status != 0 {
		args = append(args, int64(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Seller != "" {
		args = append(args, string(f.Seller))
		conds = append(conds, fmt.Sprintf("seller = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY highest_bid DESC, app_id"
	args = append(args, f.limit())
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching auctions: %w", err)
	}
	defer rows.Close()

	var records []Record
	var ids []ledger.AppID
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		ids = append(ids, rec.AppID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searching auctions: %w", err)
	}

	holdings, err := s.loadHoldings(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Holdings = holdings[records[i].AppID]
	}
	return records, nil
}

// DeleteAuction removes a record and its holdings. Deleting an unknown
// auction is a no-op.
func (s *PostgresStore) DeleteAuction(appID ledger.AppID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM auctions WHERE app_id = $1", int64(appID)); err != nil {
		return fmt.Errorf("deleting auction %d: %w", appID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) loadHoldings(ctx context.Context, ids []ledger.AppID) (map[ledger.AppID][]Holding, error) {
	holdings := make(map[ledger.AppID][]Holding, len(ids))
	if len(ids) == 0 {
		return holdings, nil
	}

	appIDs := make([]int64, len(ids))
	for i, id := range ids {
		appIDs[i] = int64(id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT app_id, asset_id, amount
		FROM auction_holdings
		WHERE app_id = ANY($1)
		ORDER BY app_id, asset_id
	`, pq.Array(appIDs))
	if err != nil {
		return nil, fmt.Errorf("loading holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var appID, assetID, amount int64
		if err := rows.Scan(&appID, &assetID, &amount); err != nil {
			return nil, fmt.Errorf("scanning holding row: %w", err)
		}
		id := ledger.AppID(appID)
		holdings[id] = append(holdings[id], Holding{AssetID: ledger.AssetID(assetID), Amount: uint64(amount)})
	}
	return holdings, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		appID, status, bidAssetID, minBid, highestBid, startTime, endTime int64
		creator, seller, highestBidder                                    string
		updatedAt                                                         time.Time
	)
	if err := row.Scan(&appID, &creator, &seller, &status, &bidAssetID, &minBid, &highestBidder, &highestBid, &startTime, &endTime, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scanning auction row: %w", err)
	}

	parsed, err := auction.ParseStatus(uint64(status))
	if err != nil {
		return Record{}, fmt.Errorf("scanning auction row: %w", err)
	}
	return Record{
		AppID:         ledger.AppID(appID),
		Creator:       ledger.Address(creator),
		Seller:        ledger.Address(seller),
		Status:        parsed,
		BidAssetID:    ledger.AssetID(bidAssetID),
		MinBid:        uint64(minBid),
		HighestBidder: ledger.Address(highestBidder),
		HighestBid:    uint64(highestBid),
		StartTime:     uint64(startTime),
		EndTime:       uint64(endTime),
		UpdatedAt:     updatedAt,
	}, nil
}
