package replay

import (
	"fmt"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const (
	fieldOrderID         = "orderId"
	fieldDeliveryAddress = "deliveryAddress"
)

// InitReducer вливает весь payload в состояние (и для первичной инициализации, и для снапшота).
func InitReducer(prior domain.State, event domain.Event) (domain.State, error) {
	payload, err := domain.DecodeState(event.Payload)
	if err != nil {
		return nil, err
	}

	next := prior.Clone()
	for k, v := range payload {
		next[k] = v
	}
	return next, nil
}

// DeliveryAddressUpdatedReducer перезаписывает только deliveryAddress.
func DeliveryAddressUpdatedReducer(prior domain.State, event domain.Event) (domain.State, error) {
	address, err := domain.DecodeState(event.Payload)
	if err != nil {
		return nil, err
	}

	next := prior.Clone()
	next[fieldDeliveryAddress] = map[string]any(address)
	return next, nil
}

// OrderIDChangedReducer перезаписывает только orderId.
func OrderIDChangedReducer(prior domain.State, event domain.Event) (domain.State, error) {
	payload, err := domain.DecodeState(event.Payload)
	if err != nil {
		return nil, err
	}
	orderID, ok := payload[fieldOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s is missing", domain.ErrInvalidPayload, fieldOrderID)
	}

	next := prior.Clone()
	next[fieldOrderID] = orderID
	return next, nil
}
