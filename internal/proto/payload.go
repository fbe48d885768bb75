package proto

import (
	"encoding/json"
	"fmt"
)

// Payload is an inbound frame from a chat client. A frame may carry both
// fields; a truthy Typing takes precedence and Message is ignored for
// that frame.
type Payload struct {
	Message string `json:"message"`
	Typing  bool   `json:"typing"`
}

// Decode parses a raw inbound frame. Malformed frames are an error and
// are dropped by the caller with no state change.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
