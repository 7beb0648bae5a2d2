package domain

import (
	"encoding/json"
	"time"
)

// Snapshot — неизменяемый полный снимок состояния заказа на момент CreatedAt.
// Payload хранит материализованное состояние целиком, а не diff.
type Snapshot struct {
	OrderID   string
	CreatedAt time.Time
	Payload   json.RawMessage
}

// State декодирует payload снапшота в состояние.
func (s Snapshot) State() (State, error) {
	return DecodeState(s.Payload)
}
