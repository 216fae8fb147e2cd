package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"wrapped invalid input", fmt.Errorf("decoding: %w", ErrInvalidInput), http.StatusBadRequest},
		{"query too long", ErrQueryTooLong, http.StatusBadRequest},
		{"batch too large", ErrBatchTooLarge, http.StatusBadRequest},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error status wins", New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad"), http.StatusUnprocessableEntity},
		{"wrapped app error", fmt.Errorf("ctx: %w", Newf(ErrTimeout, http.StatusRequestTimeout, "after %ds", 3)), http.StatusRequestTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("parsing: %w", Newf(ErrInternal, http.StatusInternalServerError, "index %d", 7))
	if !errors.Is(err, ErrInternal) {
		t.Fatal("expected errors.Is to find ErrInternal")
	}
	if got, want := err.Error(), "parsing: internal error: index 7"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
