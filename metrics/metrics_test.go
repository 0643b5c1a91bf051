package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/metrics"
)

type ping struct {
	xport.Command
}

type pinged struct {
	xport.Event
}

func TestObserver_CountsDispatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)

	bus, err := xport.NewBusBuilder().WithObserver(obs).Build()
	require.NoError(t, err)
	require.NoError(t, xport.SubscribeCommand(bus, func(context.Context, ping) (any, error) { return "pong", nil }))
	require.NoError(t, xport.SubscribeEvent(bus, func(context.Context, pinged) error { return errors.New("boom") }))

	_, err = bus.Handle(context.Background(), ping{})
	require.NoError(t, err)
	_, err = bus.Handle(context.Background(), pinged{})
	require.Error(t, err)

	expected := fmt.Sprintf(`
# HELP xport_dispatches_total Messages dispatched on the bus.
# TYPE xport_dispatches_total counter
xport_dispatches_total{kind="command",message=%q,outcome="ok"} 1
xport_dispatches_total{kind="event",message=%q,outcome="error"} 1
`, xport.MessageName(ping{}), xport.MessageName(pinged{}))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "xport_dispatches_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "xport_event_handler_errors_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "xport_subscriptions"))
}

func TestNewObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewObserver(reg)
	require.NoError(t, err)
	_, err = metrics.NewObserver(reg)
	assert.Error(t, err)
}

func TestHandler_ServesExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := metrics.NewObserver(reg)
	require.NoError(t, err)
	obs.OnEvent(xport.BusEvent{Type: xport.EventDispatchDone, Message: "m", Kind: xport.KindCommand})

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `xport_dispatches_total{kind="command",message="m",outcome="ok"} 1`))
}
