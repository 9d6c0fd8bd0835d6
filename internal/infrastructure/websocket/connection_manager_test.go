package websocket

import (
	"errors"
	"sync"
	"testing"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu          sync.Mutex
	participant domain.ParticipantRef
	auctionID   int64
	sent        []interface{}
	closed      bool
	sendErr     error
}

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Participant() domain.ParticipantRef { return c.participant }
func (c *fakeConn) AuctionID() int64                   { return c.auctionID }

func (c *fakeConn) messages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func register(t *testing.T, cm *ConnectionManager, participant domain.ParticipantRef, auctionID int64) *fakeConn {
	t.Helper()
	conn := &fakeConn{participant: participant, auctionID: auctionID}
	require.NoError(t, cm.RegisterConnection(participant, auctionID, conn))
	return conn
}

func TestConnectionManager_BroadcastAndNotify(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice, bob := domain.UserRef(1), domain.CustomerRef(1)

	aliceRoom1 := register(t, cm, alice, 1)
	aliceRoom2 := register(t, cm, alice, 2)
	bobRoom1 := register(t, cm, bob, 1)

	require.NoError(t, cm.BroadcastToAuction(1, map[string]string{"type": "bid_update"}))
	require.Equal(t, 1, aliceRoom1.messages())
	require.Equal(t, 0, aliceRoom2.messages())
	require.Equal(t, 1, bobRoom1.messages())

	require.NoError(t, cm.NotifyParticipant(alice, map[string]string{"type": "outbid"}))
	require.Equal(t, 2, aliceRoom1.messages())
	require.Equal(t, 1, aliceRoom2.messages())
	require.Equal(t, 1, bobRoom1.messages())
}

func TestConnectionManager_FailedSendDoesNotStopBroadcast(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	broken := register(t, cm, domain.UserRef(1), 1)
	broken.sendErr = errors.New("broken pipe")
	healthy := register(t, cm, domain.UserRef(2), 1)

	require.NoError(t, cm.BroadcastToAuction(1, "hello"))
	require.Equal(t, 1, healthy.messages())
}

func TestConnectionManager_ReconnectReplacesOldSocket(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice := domain.UserRef(1)

	old := register(t, cm, alice, 1)
	current := register(t, cm, alice, 1)
	require.True(t, old.closed)

	// The old socket's read loop unregistering late must not drop the new one.
	require.NoError(t, cm.UnregisterConnection(old))
	require.Len(t, cm.GetConnectionsForAuction(1), 1)
	require.Len(t, cm.GetConnectionsForParticipant(alice), 1)

	require.NoError(t, cm.UnregisterConnection(current))
	require.Empty(t, cm.GetConnectionsForAuction(1))
	require.Empty(t, cm.GetConnectionsForParticipant(alice))
}

func TestConnectionManager_CloseAndUnregister(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice := domain.UserRef(1)

	room1 := register(t, cm, alice, 1)
	room2 := register(t, cm, alice, 2)

	require.NoError(t, cm.CloseAndUnregisterConnections(1))
	require.True(t, room1.closed)
	require.False(t, room2.closed)
	require.Empty(t, cm.GetConnectionsForAuction(1))

	conns := cm.GetConnectionsForParticipant(alice)
	require.Len(t, conns, 1)
	require.Equal(t, int64(2), conns[0].AuctionID())
}
