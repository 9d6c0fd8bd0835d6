package websocket

import (
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Connection is one client socket joined to one auction room. Writes are
// serialized because gorilla connections allow a single concurrent writer.
type Connection struct {
	conn        *websocket.Conn
	participant domain.ParticipantRef
	auctionID   int64
	writeMu     sync.Mutex
	log         logger.Logger
}

func NewConnection(conn *websocket.Conn, participant domain.ParticipantRef, auctionID int64, log logger.Logger) *Connection {
	conn.SetReadLimit(maxMessageSize)
	return &Connection{
		conn:        conn,
		participant: participant,
		auctionID:   auctionID,
		log:         log,
	}
}

func (c *Connection) Send(message interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(message)
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

func (c *Connection) Participant() domain.ParticipantRef {
	return c.participant
}

func (c *Connection) AuctionID() int64 {
	return c.auctionID
}
