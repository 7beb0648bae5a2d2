package httptransport

import (
	"context"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
	"github.com/vladislavdragonenkov/order-replay/internal/service/order"
)

// OrderService — команды и запросы над заказами, которые обслуживает HTTP API.
type OrderService interface {
	Project(ctx context.Context, orderID string) (order.Projection, error)
	Initialize(ctx context.Context, orderID string, state domain.State) (domain.Event, error)
	UpdateDeliveryAddress(ctx context.Context, orderID string, address domain.DeliveryAddress) (domain.Event, error)
	ChangeOrderID(ctx context.Context, orderID string, number int64) (domain.Event, error)
	CaptureSnapshot(ctx context.Context, orderID string) (domain.Snapshot, error)
}

var _ OrderService = (*order.Service)(nil)
