package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/macrocal/pkg/config"
	"github.com/wonny/macrocal/pkg/logger"
)

func TestServerServeAndShutdown(t *testing.T) {
	cfg := &config.Config{Env: "test", Port: "8089", HTTP: config.HTTPConfig{Timeout: 30 * time.Second}}
	router, _ := newTestRouter(nil, nil)
	server := New(cfg, logger.Nop(), router)

	assert.Equal(t, ":8089", server.Addr())
	assert.Equal(t, 75*time.Second, server.httpServer.WriteTimeout)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- server.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	// a clean shutdown is not reported as a serve failure
	assert.NoError(t, <-done)
}

func TestServerStartBadAddress(t *testing.T) {
	cfg := &config.Config{Env: "test", Port: "not-a-port"}
	server := New(cfg, logger.Nop(), http.NotFoundHandler())

	assert.ErrorContains(t, server.Start(), "failed to listen")
}
