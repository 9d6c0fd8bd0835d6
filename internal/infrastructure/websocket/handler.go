package websocket

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type clientMessage struct {
	Type          string           `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	AutoMaxBid    *decimal.Decimal `json:"auto_max_bid,omitempty"`
	AutoIncrement *decimal.Decimal `json:"auto_increment,omitempty"`
}

type WebSocketHandler struct {
	bidService  *services.BidService
	auctionRepo domain.AuctionRepository
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(bidService *services.BidService, auctionRepo domain.AuctionRepository,
	connManager domain.ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bidService:  bidService,
		auctionRepo: auctionRepo,
		connManager: connManager,
		log:         log,
	}
}

// HandleConnection joins a bidder to an auction room:
// /ws/auction/{auctionID}?bidder_kind=user&bidder_id=42
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.ParseInt(mux.Vars(r)["auctionID"], 10, 64)
	if err != nil || auctionID <= 0 {
		http.Error(w, "invalid auction id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	participant, err := domain.ParseParticipantRef(query.Get("bidder_kind"), query.Get("bidder_id"))
	if err != nil {
		http.Error(w, "bidder_kind and bidder_id required", http.StatusBadRequest)
		return
	}

	auction, err := h.auctionRepo.GetAuction(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if auction.Outcome != domain.OutcomeOpen || !auction.EndTime.After(time.Now()) {
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := NewConnection(ws, participant, auctionID, h.log)
	if err := h.connManager.RegisterConnection(participant, auctionID, conn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		_ = conn.Close()
		return
	}

	h.sendSnapshot(conn)
	go h.handleMessages(conn)
}

func (h *WebSocketHandler) sendSnapshot(conn *Connection) {
	snapshot, err := h.bidService.HighestSnapshot(context.Background(), conn.AuctionID())
	if err != nil {
		h.log.Warn("Failed to load highest bid snapshot", "auction_id", conn.AuctionID(), "error", err)
		return
	}
	if err := conn.Send(map[string]interface{}{
		"type":        "snapshot",
		"auction_id":  snapshot.AuctionID,
		"current_bid": snapshot.Amount,
		"leader":      snapshot.Leader,
		"end_time":    snapshot.EndTime,
	}); err != nil {
		h.log.Error("Failed to send snapshot", "error", err)
	}
}

func (h *WebSocketHandler) handleMessages(conn *Connection) {
	defer func() {
		_ = h.connManager.UnregisterConnection(conn)
		_ = conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection closed unexpectedly", "participant", conn.Participant().String(), "error", err)
			}
			return
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(conn, &msg)
		case "ping":
			_ = conn.Send(map[string]string{"type": "pong"})
		default:
			_ = conn.Send(map[string]string{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(conn *Connection, msg *clientMessage) {
	req := &domain.PlaceBidRequest{
		AuctionID: conn.AuctionID(),
		Bidder:    conn.Participant(),
		Amount:    msg.Amount,
	}
	switch {
	case msg.AutoMaxBid != nil && msg.AutoIncrement != nil:
		req.Auto = &domain.AutoBidParams{MaxBid: *msg.AutoMaxBid, Increment: *msg.AutoIncrement}
	case msg.AutoMaxBid != nil || msg.AutoIncrement != nil:
		_ = conn.Send(rejectionMessage(domain.ErrInvalidAutoBidParameters))
		return
	}

	bid, err := h.bidService.PlaceBid(context.Background(), req)
	if err == nil {
		_ = conn.Send(map[string]interface{}{
			"type": "bid_accepted",
			"bid":  domain.NewBidView(bid),
		})
		return
	}

	var rejection *domain.BidRejection
	switch {
	case errors.As(err, &rejection):
		_ = conn.Send(rejectionMessage(rejection))
	case domain.IsRetryable(err):
		_ = conn.Send(map[string]string{"type": "error", "code": "retry", "message": "auction is busy, try again"})
	default:
		h.log.Error("Failed to place bid", "auction_id", req.AuctionID, "error", err)
		_ = conn.Send(map[string]string{"type": "error", "message": "failed to place bid"})
	}
}

func rejectionMessage(rejection *domain.BidRejection) map[string]interface{} {
	msg := map[string]interface{}{
		"type":   "bid_rejected",
		"code":   rejection.Code,
		"reason": rejection.Reason,
	}
	if rejection.Minimum != nil {
		msg["minimum"] = rejection.Minimum
	}
	return msg
}
