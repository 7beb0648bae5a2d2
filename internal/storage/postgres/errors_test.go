package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/order-replay/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("expected wrapped 23505 to be unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation must not be unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error must not be unique violation")
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{name: "bad conn", err: driver.ErrBadConn, unavailable: true},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "query error", err: &pgconn.PgError{Code: "42P01"}, unavailable: false},
		{name: "plain", err: errors.New("boom"), unavailable: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped := wrap("op", tt.err)
			if !errors.Is(wrapped, tt.err) {
				t.Fatalf("wrapped error must keep cause: %v", wrapped)
			}
			if got := domain.IsStoreUnavailable(wrapped); got != tt.unavailable {
				t.Fatalf("IsStoreUnavailable=%v, want %v (%v)", got, tt.unavailable, wrapped)
			}
		})
	}
}
