package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-engine/internal/domain"

	"github.com/shopspring/decimal"
)

type MySQLBidRepository struct {
	db *sql.DB
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

const bidColumns = `id, auction_id, bidder_id, bidder_type, amount, is_auto, auto_max_bid, auto_increment, created_at`

// highestBidQuery encodes the canonical ordering: amount, then earliest creation, then id.
const highestBidQuery = `
        SELECT ` + bidColumns + `
        FROM bids
        WHERE auction_id = ?
        ORDER BY amount DESC, created_at ASC, id ASC
        LIMIT 1
    `

func scanBid(row rowScanner) (*domain.Bid, error) {
	var (
		bid        domain.Bid
		bidderID   int64
		bidderType string
		maxBid     decimal.NullDecimal
		increment  decimal.NullDecimal
	)

	err := row.Scan(&bid.ID, &bid.AuctionID, &bidderID, &bidderType, &bid.Amount,
		&bid.IsAuto, &maxBid, &increment, &bid.CreatedAt)
	if err != nil {
		return nil, err
	}

	kind, err := domain.ParseParticipantKind(bidderType)
	if err != nil {
		return nil, err
	}
	bid.Bidder = domain.ParticipantRef{Kind: kind, ID: bidderID}
	if maxBid.Valid {
		m := maxBid.Decimal
		bid.AutoMaxBid = &m
	}
	if increment.Valid {
		i := increment.Decimal
		bid.AutoIncrement = &i
	}
	return &bid, nil
}

func (r *MySQLBidRepository) HighestBid(ctx context.Context, auctionID int64) (*domain.Bid, error) {
	bid, err := scanBid(r.db.QueryRowContext(ctx, highestBidQuery, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("highest bid for auction %d: %w", auctionID, domain.ErrNoBids)
	}
	return bid, err
}

func (r *MySQLBidRepository) GetBid(ctx context.Context, bidID int64) (*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = ?`

	bid, err := scanBid(r.db.QueryRowContext(ctx, query, bidID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get bid %d: %w", bidID, domain.ErrBidNotFound)
	}
	return bid, err
}

// InsertBid locks the auction row, compares the stored highest bid against the
// caller's snapshot and inserts only when they still match.
func (r *MySQLBidRepository) InsertBid(ctx context.Context, bid *domain.Bid, expectedHighestID int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM auctions WHERE id = ? FOR UPDATE`, bid.AuctionID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("insert bid for auction %d: %w", bid.AuctionID, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return err
	}

	var currentID int64
	current, err := scanBid(tx.QueryRowContext(ctx, highestBidQuery, bid.AuctionID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return err
	default:
		currentID = current.ID
	}
	if currentID != expectedHighestID {
		err = fmt.Errorf("insert bid for auction %d: %w", bid.AuctionID, domain.ErrStaleSnapshot)
		return err
	}

	var maxBid, increment interface{}
	if bid.AutoMaxBid != nil {
		maxBid = *bid.AutoMaxBid
	}
	if bid.AutoIncrement != nil {
		increment = *bid.AutoIncrement
	}

	query := `
        INSERT INTO bids (auction_id, bidder_id, bidder_type, amount, is_auto, auto_max_bid, auto_increment, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := tx.ExecContext(ctx, query,
		bid.AuctionID, bid.Bidder.ID, bid.Bidder.Kind.String(), bid.Amount,
		bid.IsAuto, maxBid, increment, bid.CreatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	bid.ID = id
	return nil
}

func (r *MySQLBidRepository) LatestAutoBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	query := `
        SELECT ` + bidColumns + `
        FROM bids b
        WHERE b.auction_id = ? AND b.is_auto = TRUE AND b.id = (
            SELECT MAX(b2.id) FROM bids b2
            WHERE b2.auction_id = b.auction_id AND b2.is_auto = TRUE
              AND b2.bidder_id = b.bidder_id AND b2.bidder_type = b.bidder_type
        )
        ORDER BY b.bidder_id ASC, b.bidder_type ASC
    `
	return r.queryBids(ctx, query, auctionID)
}

func (r *MySQLBidRepository) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE auction_id = ? ORDER BY id ASC`
	return r.queryBids(ctx, query, auctionID)
}

func (r *MySQLBidRepository) ListBidsByBidder(ctx context.Context, bidder domain.ParticipantRef) ([]*domain.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE bidder_id = ? AND bidder_type = ? ORDER BY id ASC`
	return r.queryBids(ctx, query, bidder.ID, bidder.Kind.String())
}

func (r *MySQLBidRepository) queryBids(ctx context.Context, query string, args ...interface{}) ([]*domain.Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}

	return bids, rows.Err()
}
