package server

import (
	"net"
	"net/http"
	"testing"
	"time"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
)

func TestNewAppliesTimeouts(t *testing.T) {
	cfg := &config.ServerConfig{
		BindIP:        "127.0.0.1",
		ListenAddress: "9090",
		ReadTimeout:   "5s",
		WriteTimeout:  "bogus",
	}
	srv := New(cfg, http.NotFoundHandler())

	if srv.Addr != "127.0.0.1:9090" {
		t.Errorf("Addr = %q", srv.Addr)
	}
	if srv.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v", srv.ReadTimeout)
	}
	if srv.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want fallback", srv.WriteTimeout)
	}
	if srv.IdleTimeout != 120*time.Second {
		t.Errorf("IdleTimeout = %v, want fallback", srv.IdleTimeout)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- Start(srv) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cleaned := false
	Shutdown(srv, time.Second, func() { cleaned = true })
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after shutdown", err)
	}
	if !cleaned {
		t.Error("cleanup was not run")
	}
}
