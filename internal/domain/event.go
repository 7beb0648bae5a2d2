package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType — дискриминатор события, по которому выбирается reducer.
type EventType string

const (
	// EventTypeInit полностью инициализирует (или переинициализирует из снапшота) состояние заказа.
	EventTypeInit EventType = "Init"
	// EventTypeDeliveryAddressUpdated перезаписывает только поле deliveryAddress.
	EventTypeDeliveryAddressUpdated EventType = "DeliveryAddressUpdated"
	// EventTypeOrderIDChanged перезаписывает только поле orderId.
	EventTypeOrderIDChanged EventType = "OrderIdChanged"
)

// Event — неизменяемая запись об одном изменении состояния заказа.
type Event struct {
	// ID уникален в пределах хранилища и используется для дедупликации при replay.
	ID string
	// OrderID определяет поток событий (timeline) конкретного заказа.
	OrderID string
	Type    EventType
	// CreatedAt не убывает в порядке добавления событий в лог.
	CreatedAt time.Time
	// Payload непрозрачен для лога; его интерпретирует reducer.
	Payload json.RawMessage
}

// Validate проверяет обязательные поля перед записью в лог.
func (e Event) Validate() error {
	if strings.TrimSpace(e.OrderID) == "" {
		return ErrOrderIDRequired
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return ErrEventTypeRequired
	}
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("event id is required")
	}
	return nil
}

// DeliveryAddress — payload события DeliveryAddressUpdated.
type DeliveryAddress struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// OrderIDChanged — payload события OrderIdChanged.
type OrderIDChanged struct {
	OrderID int64 `json:"orderId"`
}
