package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State — производное состояние заказа (projection). Схема не фиксирована:
// каждый reducer может добавить или перезаписать поля.
type State map[string]any

// DecodeState разбирает JSON-объект в State. Всё, что не является объектом, — ErrInvalidPayload.
func DecodeState(raw json.RawMessage) (State, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected json object", ErrInvalidPayload)
	}
	state := State{}
	if err := json.Unmarshal(trimmed, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return state, nil
}

// Clone возвращает поверхностную копию. Вложенные значения reducers не мутируют,
// поэтому их можно разделять между версиями состояния.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Encode сериализует состояние в JSON; nil-состояние кодируется как пустой объект.
func (s State) Encode() (json.RawMessage, error) {
	if s == nil {
		return json.RawMessage(`{}`), nil
	}
	data, err := json.Marshal(map[string]any(s))
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Decode переносит состояние в типизированную структуру через JSON.
func (s State) Decode(target any) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	return nil
}

// OrderView — типизированное представление состояния заказа для API и тестов.
type OrderView struct {
	OrderID         int64            `json:"orderId"`
	DeliveryAddress *DeliveryAddress `json:"deliveryAddress,omitempty"`
}
