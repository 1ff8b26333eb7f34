package sesserr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"connectivity", Connectivity(errors.New("offline")), KindConnectivity},
		{"transport", Transport(errors.New("reset")), KindTransport},
		{"authorization", Authorization(errors.New("401")), KindAuthorization},
		{"malformed", Malformed(errors.New("bad payload")), KindMalformed},
		{"exhausted", Exhausted(errors.New("gave up")), KindExhausted},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"unclassified", errors.New("mystery"), KindTransport},
	}

	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("%s: KindOf = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	// Kind must survive fmt.Errorf wrapping.
	err := fmt.Errorf("refresh rejected: %w", Authorization(errors.New("401")))
	if got := KindOf(err); got != KindAuthorization {
		t.Errorf("KindOf(wrapped) = %v, want KindAuthorization", got)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Connectivity(errors.New("offline"))) {
		t.Error("connectivity errors should be retryable")
	}
	if !Retryable(Transport(errors.New("reset"))) {
		t.Error("transport errors should be retryable")
	}
	if Retryable(Authorization(errors.New("401"))) {
		t.Error("authorization errors must not be retryable")
	}
	if Retryable(Malformed(errors.New("bad"))) {
		t.Error("malformed errors must not be retryable")
	}
	if Retryable(Exhausted(errors.New("gave up"))) {
		t.Error("exhausted errors must not be retryable")
	}
	if !Retryable(errors.New("mystery")) {
		t.Error("unclassified errors should be retried")
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := Transport(inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped error should satisfy errors.Is for the inner error")
	}
	if err.Error() != "inner" {
		t.Errorf("Error() = %q, want %q", err.Error(), "inner")
	}
}

func TestKindString(t *testing.T) {
	if KindAuthorization.String() != "authorization" {
		t.Errorf("String = %q", KindAuthorization.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("String for invalid kind = %q", Kind(99).String())
	}
}
