package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid_input", InvalidInput("token_ca", "missing 0x prefix"), http.StatusBadRequest},
		{"not_found", NotFound("event", "abc"), http.StatusNotFound},
		{"rate_limited", RateLimited(60, "1m"), http.StatusTooManyRequests},
		{"degraded", Degraded("cards.render", "template_missing"), http.StatusOK},
		{"retryable", Retryable("outbox.dispatch", fmt.Errorf("dial tcp: timeout")), http.StatusServiceUnavailable},
		{"fatal", Fatal("missing BQ_PROJECT", nil), http.StatusInternalServerError},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, HTTPStatus(c.err))
		})
	}
}

func TestIsKind(t *testing.T) {
	err := Retryable("signals.persist", fmt.Errorf("lock conflict"))
	assert.True(t, IsKind(err, KindRetryable))
	assert.False(t, IsKind(err, KindFatal))
}

func TestWithDetailChaining(t *testing.T) {
	err := InvalidInput("symbol", "empty").WithDetail("hint", "trim whitespace")
	assert.Equal(t, "empty", err.Details["reason"])
	assert.Equal(t, "trim whitespace", err.Details["hint"])
}
