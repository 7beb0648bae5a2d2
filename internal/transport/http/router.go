// Package httptransport — HTTP API над сервисом заказов.
package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Deps — зависимости роутера.
type Deps struct {
	Orders OrderService
	Logger *log.Entry
}

type deliveryAddressRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type orderIDRequest struct {
	OrderID *int64 `json:"orderId"`
}

type eventResponse struct {
	ID        string           `json:"id"`
	OrderID   string           `json:"order_id"`
	Type      domain.EventType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Payload   json.RawMessage  `json:"payload"`
}

type snapshotResponse struct {
	OrderID   string          `json:"order_id"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter собирает chi-роутер API заказов.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	h := &handlers{orders: deps.Orders, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	r.Route("/v1/orders/{orderID}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Post("/init", h.initOrder)
		r.Put("/delivery-address", h.updateDeliveryAddress)
		r.Put("/order-id", h.changeOrderID)
		r.Post("/snapshots", h.captureSnapshot)
	})

	return r
}

type handlers struct {
	orders OrderService
	logger *log.Entry
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	projection, err := h.orders.Project(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (h *handlers) initOrder(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	state, err := domain.DecodeState(raw)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	event, err := h.orders.Initialize(r.Context(), chi.URLParam(r, "orderID"), state)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *handlers) updateDeliveryAddress(w http.ResponseWriter, r *http.Request) {
	var req deliveryAddressRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	event, err := h.orders.UpdateDeliveryAddress(r.Context(), chi.URLParam(r, "orderID"), domain.DeliveryAddress{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *handlers) changeOrderID(w http.ResponseWriter, r *http.Request) {
	var req orderIDRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.OrderID == nil {
		h.writeError(w, r, fmt.Errorf("%w: orderId is required", errBadRequest))
		return
	}

	event, err := h.orders.ChangeOrderID(r.Context(), chi.URLParam(r, "orderID"), *req.OrderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *handlers) captureSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.orders.CaptureSnapshot(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotResponse{
		OrderID:   snapshot.OrderID,
		CreatedAt: snapshot.CreatedAt,
		Payload:   snapshot.Payload,
	})
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, domain.ErrOrderIDRequired), errors.Is(err, domain.ErrEventTypeRequired):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownHandler), errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSnapshotConflict), errors.Is(err, domain.ErrEventOutOfOrder):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toEventResponse(event domain.Event) eventResponse {
	return eventResponse{
		ID:        event.ID,
		OrderID:   event.OrderID,
		Type:      event.Type,
		CreatedAt: event.CreatedAt,
		Payload:   event.Payload,
	}
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	return raw, nil
}

func decodeStrict(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after json object", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
