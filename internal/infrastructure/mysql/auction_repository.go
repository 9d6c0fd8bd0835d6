package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

const auctionColumns = `id, creator_id, creator_type, title, start_time, end_time, starting_bid,
        reserve_price, status, winner_id, winner_type, closed_outcome, closed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction     domain.Auction
		creatorID   int64
		creatorType string
		reserve     decimal.NullDecimal
		status      string
		winnerID    sql.NullInt64
		winnerType  sql.NullString
		outcome     sql.NullString
		closedAt    sql.NullTime
	)

	err := row.Scan(&auction.ID, &creatorID, &creatorType, &auction.Title,
		&auction.StartTime, &auction.EndTime, &auction.StartingBid, &reserve, &status,
		&winnerID, &winnerType, &outcome, &closedAt, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	kind, err := domain.ParseParticipantKind(creatorType)
	if err != nil {
		return nil, err
	}
	auction.Creator = domain.ParticipantRef{Kind: kind, ID: creatorID}
	auction.Status = domain.AuctionStatus(status)

	if reserve.Valid {
		r := reserve.Decimal
		auction.ReservePrice = &r
	}
	if winnerID.Valid && winnerType.Valid {
		wk, err := domain.ParseParticipantKind(winnerType.String)
		if err != nil {
			return nil, err
		}
		auction.Winner = &domain.ParticipantRef{Kind: wk, ID: winnerID.Int64}
	}
	if outcome.Valid {
		auction.Outcome = domain.Outcome(outcome.String)
	}
	if closedAt.Valid {
		t := closedAt.Time
		auction.ClosedAt = &t
	}
	return &auction, nil
}

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	if !auction.EndTime.After(auction.StartTime) {
		return fmt.Errorf("create auction: end time must be after start time")
	}

	now := time.Now()
	if auction.CreatedAt.IsZero() {
		auction.CreatedAt = now
	}
	auction.UpdatedAt = now

	var reserve interface{}
	if auction.ReservePrice != nil {
		reserve = *auction.ReservePrice
	}

	query := `
        INSERT INTO auctions (creator_id, creator_type, title, start_time, end_time,
            starting_bid, reserve_price, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	res, err := r.db.ExecContext(ctx, query,
		auction.Creator.ID, auction.Creator.Kind.String(), auction.Title,
		auction.StartTime, auction.EndTime, auction.StartingBid, reserve,
		string(auction.Status), auction.CreatedAt, auction.UpdatedAt)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	auction.ID = id
	return nil
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get auction %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return auction, err
}

func (r *MySQLAuctionRepository) ListDueAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE status = ? AND winner_id IS NULL AND closed_outcome IS NULL AND end_time <= ?
        ORDER BY end_time ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, string(domain.AuctionApproved), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}

	return auctions, rows.Err()
}

func (r *MySQLAuctionRepository) UpdateEndTime(ctx context.Context, auctionID int64, endTime time.Time) error {
	query := `UPDATE auctions SET end_time = ?, updated_at = ? WHERE id = ? AND start_time < ?`
	res, err := r.db.ExecContext(ctx, query, endTime, time.Now(), auctionID, endTime)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update end time %d: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return nil
}

func (r *MySQLAuctionRepository) CloseAuction(ctx context.Context, auctionID int64, outcome domain.Outcome,
	winner *domain.ParticipantRef, at time.Time) (bool, error) {
	var winnerID, winnerType interface{}
	if winner != nil {
		winnerID, winnerType = winner.ID, winner.Kind.String()
	}

	query := `
        UPDATE auctions
        SET closed_outcome = ?, closed_at = ?, winner_id = ?, winner_type = ?, updated_at = ?
        WHERE id = ? AND closed_outcome IS NULL AND winner_id IS NULL
    `
	res, err := r.db.ExecContext(ctx, query, string(outcome), at, winnerID, winnerType, at, auctionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
