// Package protocol defines the JSON frames exchanged over the player websocket.
package protocol

import (
	"encoding/json"
	"errors"
)

// Version is the protocol_version a client must send in HELLO.
const Version = "1.0"

const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeState     = "STATE"
	TypeAct       = "ACT"
	TypeActResult = "ACT_RESULT"
	TypeError     = "ERROR"
)

var errNoType = errors.New("protocol: frame has no type")

// BaseMessage is the routing prefix shared by every frame.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// DecodeBase reads only the routing fields of b. A frame without a type is an error.
func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return m, err
	}
	if m.Type == "" {
		return m, errNoType
	}
	return m, nil
}
