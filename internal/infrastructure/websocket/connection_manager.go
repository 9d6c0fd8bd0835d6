package websocket

import (
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type ConnectionManager struct {
	connections      map[int64]map[domain.ParticipantRef]domain.WebSocketConnection // auctionID -> participant -> connection
	participantConns map[domain.ParticipantRef][]domain.WebSocketConnection
	mutex            sync.RWMutex
	log              logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections:      make(map[int64]map[domain.ParticipantRef]domain.WebSocketConnection),
		participantConns: make(map[domain.ParticipantRef][]domain.WebSocketConnection),
		log:              log,
	}
}

// RegisterConnection replaces any earlier connection of the same participant
// to the same auction room.
func (cm *ConnectionManager) RegisterConnection(participant domain.ParticipantRef, auctionID int64, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[domain.ParticipantRef]domain.WebSocketConnection)
	}
	if previous, exists := cm.connections[auctionID][participant]; exists && previous != conn {
		cm.removeParticipantConnLocked(participant, auctionID)
		if err := previous.Close(); err != nil {
			cm.log.Warn("Failed to close replaced connection", "participant", participant.String(), "auction_id", auctionID, "error", err)
		}
	}
	cm.connections[auctionID][participant] = conn
	cm.participantConns[participant] = append(cm.participantConns[participant], conn)

	cm.log.Info("Connection registered", "participant", participant.String(), "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	participant, auctionID := conn.Participant(), conn.AuctionID()
	auctionConns, exists := cm.connections[auctionID]
	if !exists || auctionConns[participant] != conn {
		return nil
	}

	delete(auctionConns, participant)
	if len(auctionConns) == 0 {
		delete(cm.connections, auctionID)
	}
	cm.removeParticipantConnLocked(participant, auctionID)

	cm.log.Info("Connection unregistered", "participant", participant.String(), "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		for participant, conn := range auctionConns {
			if err := conn.Close(); err != nil {
				cm.log.Error("Failed to close connection", "participant", participant.String(),
					"auction_id", auctionID, "error", err)
			}
			cm.removeParticipantConnLocked(participant, auctionID)
		}
		delete(cm.connections, auctionID)
	}

	cm.log.Info("Connections closed for auction", "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) removeParticipantConnLocked(participant domain.ParticipantRef, auctionID int64) {
	conns, exists := cm.participantConns[participant]
	if !exists {
		return
	}

	var kept []domain.WebSocketConnection
	for _, c := range conns {
		if c.AuctionID() != auctionID {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(cm.participantConns, participant)
	} else {
		cm.participantConns[participant] = kept
	}
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID int64) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForParticipant(participant domain.ParticipantRef) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conns := cm.participantConns[participant]
	out := make([]domain.WebSocketConnection, len(conns))
	copy(out, conns)
	return out
}

// BroadcastToAuction logs and skips connections that fail to send.
func (cm *ConnectionManager) BroadcastToAuction(auctionID int64, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "participant", conn.Participant().String(),
				"auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyParticipant(participant domain.ParticipantRef, message interface{}) error {
	for _, conn := range cm.GetConnectionsForParticipant(participant) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "participant", participant.String(), "error", err)
		}
	}
	return nil
}
