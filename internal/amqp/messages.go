package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"bizdash/internal/core"
)

// Operation is the kind of change applied to a record.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

// RecordChangedMessage announces a catalog write. Consumers reload what
// they need from the store.
type RecordChangedMessage struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Operation  Operation `json:"operation"`
	Timestamp  time.Time `json:"timestamp"`
}

var errIncompleteMessage = errors.New("record changed message needs collection and operation")

func NewRecordChangedMessage(collection, id string, op Operation) *RecordChangedMessage {
	return &RecordChangedMessage{
		Collection: collection,
		ID:         id,
		Operation:  op,
		Timestamp:  time.Now().UTC(),
	}
}

// AffectsReports reports whether the change can alter the dashboard
// aggregates. Customer edits never do.
func (m *RecordChangedMessage) AffectsReports() bool {
	return m.Collection == core.CollectionSales || m.Collection == core.CollectionProducts
}

func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Collection == "" || msg.Operation == "" {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
