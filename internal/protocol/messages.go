package protocol

import (
	"encoding/json"

	"heroranker.app/internal/sim/world/kernel/model"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	PlayerID        string `json:"player_id,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	SessionID       string            `json:"session_id"`
	PlayerID        string            `json:"player_id"`
	Tick            uint64            `json:"tick"`
	TickDurationMs  int               `json:"tick_duration_ms"`
	Catalogs        map[string]string `json:"catalogs"`
}

// STATE (server -> client), sent after every tick.
type StateMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Tick            uint64            `json:"tick"`
	State           model.GameState   `json:"state"`
	Caps            model.Caps        `json:"caps"`
	Produced        model.ResourceSet `json:"produced"`
	Completed       []string          `json:"completed,omitempty"`
}

// ACT (client -> server). Action is decoded by the transport into the rule layer's action type.
type ActMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Action          json.RawMessage `json:"action"`
}

// ACT_RESULT (server -> client)
type ActResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	BuildingID      string `json:"building_id,omitempty"`
	HeroID          string `json:"hero_id,omitempty"`
}

// ERROR (server -> client) for frames that could not be routed.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
