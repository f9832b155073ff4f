package amqp

import (
	"encoding/json"
	"time"
)

// InstanceSyncMessage announces a freshly created transaction instance.
// It carries only the ID; the mirror worker fetches the full row from the
// database before exporting it.
type InstanceSyncMessage struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInstanceSyncMessage creates a sync message for the given instance id.
func NewInstanceSyncMessage(id int64) *InstanceSyncMessage {
	return &InstanceSyncMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *InstanceSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// InstanceSyncMessageFromJSON creates a message from JSON bytes.
func InstanceSyncMessageFromJSON(data []byte) (*InstanceSyncMessage, error) {
	var msg InstanceSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
