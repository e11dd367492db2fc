package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"explicit transient", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("gateway: complete: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure text", errors.New("dial tcp: lookup api.openai.com: no such host"), true},
		{"io timeout text", errors.New("net/http: i/o timeout"), true},
		{"plain error", errors.New("invalid model name"), false},
		{"validation error", errors.New("email is required"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("upstream busy")
	te := NewTransientError(inner, 503)

	if !errors.Is(te, inner) {
		t.Error("expected errors.Is to reach the wrapped error")
	}
	if te.Error() != "upstream busy" {
		t.Errorf("unexpected message: %s", te.Error())
	}
	if te.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", te.StatusCode)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	transient := []int{408, 429, 500, 502, 503, 504}
	for _, code := range transient {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}

	permanent := []int{200, 400, 401, 403, 404, 422}
	for _, code := range permanent {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be permanent", code)
		}
	}
}
