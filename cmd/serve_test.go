package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownOnDone_DrainsInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	shutdownOnDone(ctx, srv, 5*time.Second)

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(ln) }()

	var (
		resp   *http.Response
		reqErr error
	)
	reqDone := make(chan struct{})
	go func() {
		resp, reqErr = http.Get("http://" + ln.Addr().String())
		close(reqDone)
	}()

	// Cancel while the request is still being handled; the response must
	// still arrive intact.
	<-started
	cancel()

	<-reqDone
	require.NoError(t, reqErr)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.ErrorIs(t, <-serveDone, http.ErrServerClosed)
}
