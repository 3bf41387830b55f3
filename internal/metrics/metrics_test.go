package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Commands(t *testing.T) {
	m := New(nil, nil)

	m.ObserveCommand("get", time.Millisecond)
	m.ObserveCommand("get", time.Millisecond)
	m.ObserveCommand("set", time.Millisecond)
	m.ObserveError("incr", "invalid_int")
	m.ObserveWrite("set")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("incr", "invalid_int")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("set")))
}

func TestMetrics_Clients(t *testing.T) {
	m := New(nil, nil)

	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.clients))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connections))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(func() int { return 7 }, func() int64 { return 3 })
	m.ObserveCommand("get", time.Microsecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "flashkv_keyspace_keys 7"), body)
	assert.True(t, strings.Contains(body, "flashkv_keyspace_expired_keys_total 3"), body)
	assert.True(t, strings.Contains(body, `flashkv_commands_total{command="get"} 1`), body)
}
