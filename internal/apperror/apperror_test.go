package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{BadRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Internal, http.StatusInternalServerError},
		{Code("OTHER"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWrapAndFrom(t *testing.T) {
	cause := errors.New("fetcher not found for dataset: prices")
	err := fmt.Errorf("get observations: %w", Wrap(NotFound, "unknown dataset", cause))

	ae, ok := From(err)
	if !ok {
		t.Fatal("expected an AppError in the chain")
	}
	if ae.Code() != NotFound || ae.Message() != "unknown dataset" {
		t.Errorf("unexpected error %v", ae)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable with errors.Is")
	}

	if _, ok := From(errors.New("plain")); ok {
		t.Error("plain errors are not AppErrors")
	}
}
