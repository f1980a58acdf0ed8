package ws

import (
	"encoding/json"

	"github.com/mapsmith/mapsmith/internal/chain"
)

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgStepStart     MessageType = "step_start"
	MsgStepComplete  MessageType = "step_complete"
	MsgChainComplete MessageType = "chain_complete"
	MsgChainError    MessageType = "chain_error"
	MsgMapUpdated    MessageType = "map_updated"
	MsgError         MessageType = "error"
	MsgSync          MessageType = "sync"
	MsgChainList     MessageType = "chain_list"
)

// Message is the envelope for all WebSocket messages. ChainID names the
// chain a run event belongs to.
type Message struct {
	Type    MessageType     `json:"type"`
	ChainID string          `json:"chainId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	return newChainMessage(typ, "", payload)
}

func newChainMessage(typ MessageType, chainID string, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, ChainID: chainID, Payload: p})
}

// eventTypes maps executor events to wire message types.
var eventTypes = map[chain.EventKind]MessageType{
	chain.EventStepStart:     MsgStepStart,
	chain.EventStepComplete:  MsgStepComplete,
	chain.EventChainComplete: MsgChainComplete,
	chain.EventChainError:    MsgChainError,
}
