package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const (
	HeaderBidderKind = "X-Bidder-Kind"
	HeaderBidderID   = "X-Bidder-ID"
)

// Sweeper runs one finalization pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) ([]domain.SweepResult, error)
}

type BidHandler struct {
	bidService *services.BidService
	sweeper    Sweeper
	log        logger.Logger
}

type PlaceBidRequest struct {
	Amount        decimal.Decimal  `json:"amount"`
	AutoMaxBid    *decimal.Decimal `json:"auto_max_bid,omitempty"`
	AutoIncrement *decimal.Decimal `json:"auto_increment,omitempty"`
}

type BidResponse struct {
	ID            int64                 `json:"id"`
	AuctionID     int64                 `json:"auction_id"`
	Bidder        domain.ParticipantRef `json:"bidder"`
	Amount        decimal.Decimal       `json:"amount"`
	IsAuto        bool                  `json:"is_auto"`
	AutoMaxBid    *decimal.Decimal      `json:"auto_max_bid,omitempty"`
	AutoIncrement *decimal.Decimal      `json:"auto_increment,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func NewBidHandler(bidService *services.BidService, sweeper Sweeper, log logger.Logger) *BidHandler {
	return &BidHandler{
		bidService: bidService,
		sweeper:    sweeper,
		log:        log,
	}
}

func (h *BidHandler) Register(api *echo.Group) {
	api.POST("/auctions/:id/bids", h.PlaceBid)
	api.GET("/auctions/:id/bids", h.ListBids)
	api.GET("/auctions/:id/bids/public", h.PublicBids)
	api.GET("/bidders/:kind/:id/bids", h.BidderBids)
	api.GET("/bids/:id", h.GetBid)
	api.POST("/sweeps", h.RunSweep)
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	bidder, err := domain.ParseParticipantRef(c.Request().Header.Get(HeaderBidderKind), c.Request().Header.Get(HeaderBidderID))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing or invalid bidder identity"})
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("Failed to bind bid request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	placeReq := &domain.PlaceBidRequest{
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    req.Amount,
	}
	switch {
	case req.AutoMaxBid != nil && req.AutoIncrement != nil:
		placeReq.Auto = &domain.AutoBidParams{MaxBid: *req.AutoMaxBid, Increment: *req.AutoIncrement}
	case req.AutoMaxBid != nil || req.AutoIncrement != nil:
		return h.errorResponse(c, domain.ErrInvalidAutoBidParameters)
	}

	bid, err := h.bidService.PlaceBid(c.Request().Context(), placeReq)
	if err != nil {
		return h.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, toBidResponse(bid))
}

func (h *BidHandler) ListBids(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	bids, err := h.bidService.BidHistory(c.Request().Context(), auctionID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, toBidResponses(bids))
}

func (h *BidHandler) PublicBids(c echo.Context) error {
	auctionID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid auction id"})
	}

	history, err := h.bidService.PublicBidHistory(c.Request().Context(), auctionID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *BidHandler) GetBid(c echo.Context) error {
	bidID, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid bid id"})
	}

	bid, err := h.bidService.GetBid(c.Request().Context(), bidID)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, toBidResponse(bid))
}

func (h *BidHandler) BidderBids(c echo.Context) error {
	bidder, err := domain.ParseParticipantRef(c.Param("kind"), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid bidder"})
	}

	bids, err := h.bidService.BidsByBidder(c.Request().Context(), bidder)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, toBidResponses(bids))
}

// RunSweep reports the auctions finalized by this pass. Partial failures still
// return the finalized ones with 200 and list the error.
func (h *BidHandler) RunSweep(c echo.Context) error {
	results, err := h.sweeper.RunOnce(c.Request().Context())
	if results == nil {
		results = []domain.SweepResult{}
	}

	body := map[string]interface{}{"results": results}
	if err != nil {
		h.log.Error("Sweep finished with errors", "error", err)
		body["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, body)
}

func (h *BidHandler) errorResponse(c echo.Context, err error) error {
	var rejection *domain.BidRejection
	switch {
	case errors.As(err, &rejection):
		status := http.StatusUnprocessableEntity
		if rejection.Code == domain.CodeSelfBidForbidden || rejection.Code == domain.CodeBidderNotEligible {
			status = http.StatusForbidden
		}
		body := map[string]interface{}{
			"error": rejection.Reason,
			"code":  rejection.Code,
		}
		if rejection.Minimum != nil {
			body["minimum"] = rejection.Minimum
		}
		return c.JSON(status, body)

	case domain.IsRetryable(err):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Auction is busy, retry shortly"})

	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Auction not found"})

	case errors.Is(err, domain.ErrBidNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Bid not found"})

	default:
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal error"})
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func toBidResponse(b *domain.Bid) BidResponse {
	return BidResponse{
		ID:            b.ID,
		AuctionID:     b.AuctionID,
		Bidder:        b.Bidder,
		Amount:        b.Amount,
		IsAuto:        b.IsAuto,
		AutoMaxBid:    b.AutoMaxBid,
		AutoIncrement: b.AutoIncrement,
		CreatedAt:     b.CreatedAt,
	}
}

func toBidResponses(bids []*domain.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	return out
}
