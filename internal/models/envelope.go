package models

import (
	"encoding/json"
	"time"
)

// Envelope kinds.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// Envelope is the JSON message exchanged with peers over the pub/sub transport.
type Envelope struct {
	UUID     string          `json:"uuid"`
	Type     string          `json:"type"`
	Source   string          `json:"source,omitempty"`
	Endpoint string          `json:"endpoint,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// Result is the payload of every response envelope produced by this bridge.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Failure builds an unsuccessful Result.
func Failure(reason string) Result {
	return Result{Success: false, Error: reason}
}

// Ok builds a successful Result.
func Ok() Result {
	return Result{Success: true}
}
