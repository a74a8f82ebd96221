package main

import (
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeReturnsOnListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	server := &http.Server{Addr: busy.Addr().String(), Handler: http.NotFoundHandler()}

	done := make(chan int, 1)
	go func() { done <- serve(server, make(chan os.Signal), zerolog.Nop()) }()

	select {
	case code := <-done:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after listen failure")
	}
}

func TestServeShutsDownOnSignal(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	quit := make(chan os.Signal, 1)
	quit <- syscall.SIGTERM

	assert.Equal(t, 0, serve(server, quit, zerolog.Nop()))
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}
