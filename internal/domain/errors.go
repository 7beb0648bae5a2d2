package domain

import "errors"

var (
	// ErrUnknownHandler — для типа события нет зарегистрированного reducer; replay прерывается.
	ErrUnknownHandler = errors.New("unknown event handler")
	// ErrDuplicateRegistration — reducer для типа уже зарегистрирован.
	ErrDuplicateRegistration = errors.New("duplicate handler registration")
	// ErrInvalidPayload — payload события или снапшота не соответствует ожиданиям reducer.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrOrderIDRequired — не указан идентификатор заказа (потока событий).
	ErrOrderIDRequired = errors.New("order_id is required")
	// ErrEventTypeRequired — не указан тип события.
	ErrEventTypeRequired = errors.New("event type is required")
	// ErrSnapshotNotFound — для заказа нет ни одного снапшота.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrSnapshotConflict — снапшот с таким CreatedAt для заказа уже существует.
	ErrSnapshotConflict = errors.New("snapshot already exists for timestamp")
	// ErrEventOutOfOrder — событие старше последнего снапшота заказа и не попало бы ни в один replay.
	ErrEventOutOfOrder = errors.New("event is older than the latest snapshot")
	// ErrStoreUnavailable — хранилище событий или снапшотов недоступно.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsUnknownHandler проверяет, является ли ошибка отсутствием reducer.
func IsUnknownHandler(err error) bool {
	return errors.Is(err, ErrUnknownHandler)
}

// IsStoreUnavailable проверяет, является ли ошибка недоступностью хранилища.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
