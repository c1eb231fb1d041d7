package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeOp names the mutation that produced a change message.
type ChangeOp string

const (
	OpCreated ChangeOp = "created"
	OpDeleted ChangeOp = "deleted"
)

// TransactionChangedMessage tells listeners that the transaction list changed.
// It carries no record data; consumers refetch what they display.
type TransactionChangedMessage struct {
	Op        ChangeOp  `json:"op"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionChangedMessage(op ChangeOp, id string) *TransactionChangedMessage {
	return &TransactionChangedMessage{
		Op:        op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionChangedMessageFromJSON decodes and checks a message.
func TransactionChangedMessageFromJSON(data []byte) (*TransactionChangedMessage, error) {
	var msg TransactionChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case OpCreated, OpDeleted:
	default:
		return nil, fmt.Errorf("unknown change op %q", msg.Op)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("change message without id")
	}
	return &msg, nil
}
