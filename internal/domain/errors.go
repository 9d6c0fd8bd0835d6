package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Store-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrStaleSnapshot   = errors.New("highest bid changed since snapshot")
	ErrStorage         = errors.New("storage failure")
)

// Concurrency errors
var (
	ErrLockTimeout = errors.New("timed out waiting for auction lock")
	ErrLockNotHeld = errors.New("auction lock not held")
)

type RejectCode string

const (
	CodeAuctionNotOpen           RejectCode = "auction_not_open"
	CodeSelfBidForbidden         RejectCode = "self_bid_forbidden"
	CodeBidTooLow                RejectCode = "bid_too_low"
	CodeInvalidAutoBidParameters RejectCode = "invalid_auto_bid_parameters"
	CodeBidderNotEligible        RejectCode = "bidder_not_eligible"
	CodeInvalidAmount            RejectCode = "invalid_amount"
)

// BidRejection is a caller-correctable validation failure.
type BidRejection struct {
	Code    RejectCode
	Reason  string
	Minimum *decimal.Decimal
}

func (e *BidRejection) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches any rejection carrying the same code, so errors.Is(err, ErrBidTooLow) works
// for rejections built with a specific reason.
func (e *BidRejection) Is(target error) bool {
	t, ok := target.(*BidRejection)
	return ok && t.Code == e.Code
}

// Validation errors
var (
	ErrAuctionNotOpen           = &BidRejection{Code: CodeAuctionNotOpen, Reason: "auction is not open for bidding"}
	ErrSelfBidForbidden         = &BidRejection{Code: CodeSelfBidForbidden, Reason: "you cannot bid on your own auction"}
	ErrBidTooLow                = &BidRejection{Code: CodeBidTooLow, Reason: "bid amount too low"}
	ErrInvalidAutoBidParameters = &BidRejection{Code: CodeInvalidAutoBidParameters, Reason: "invalid auto-bid parameters"}
	ErrBidderNotEligible        = &BidRejection{Code: CodeBidderNotEligible, Reason: "only users and customers can place bids"}
	ErrInvalidAmount            = &BidRejection{Code: CodeInvalidAmount, Reason: "amount must be positive with at most two decimal places"}
)

func NewBidTooLow(minimum decimal.Decimal) *BidRejection {
	return &BidRejection{
		Code:    CodeBidTooLow,
		Reason:  "your bid must be higher than " + minimum.StringFixed(2),
		Minimum: &minimum,
	}
}

func IsRejection(err error) bool {
	var r *BidRejection
	return errors.As(err, &r)
}

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrStaleSnapshot)
}
