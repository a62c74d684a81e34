// Package server provides HTTP server setup and lifecycle management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/maxdiskusage/internal/config"
	"git.uuxo.net/uuxo/maxdiskusage/internal/utils"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Address joins bind_ip and listen_address into a listen address.
func Address(cfg *config.ServerConfig) string {
	return cfg.BindIP + ":" + cfg.ListenAddress
}

// New creates a configured HTTP server.
func New(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:           Address(cfg),
		Handler:        handler,
		ReadTimeout:    utils.ParseDuration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:   utils.ParseDuration(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:    utils.ParseDuration(cfg.IdleTimeout, 120*time.Second),
		MaxHeaderBytes: 1 << 20,
	}
}

// Start starts the HTTP server and blocks until it is shut down.
func Start(srv *http.Server) error {
	if strings.HasPrefix(srv.Addr, "0.0.0.0:") {
		log.Info("Binding to 0.0.0.0. Any net/http logs you see are normal for this universal address.")
	}
	log.Infof("Admission API listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops srv within timeout, then runs cleanupFn.
func Shutdown(srv *http.Server, timeout time.Duration, cleanupFn func()) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	} else {
		log.Info("Server shutdown completed")
	}

	if cleanupFn != nil {
		cleanupFn()
	}
}

// SetupGracefulShutdown shuts srv down on SIGINT/SIGTERM. cancel is called
// first so background loops stop before connections drain.
func SetupGracefulShutdown(srv *http.Server, timeout time.Duration, cancel context.CancelFunc, cleanupFn func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
		Shutdown(srv, timeout, cleanupFn)
	}()
}

// PrintStartupBanner prints the server startup banner.
func PrintStartupBanner(version, listenAddr, monitoredPath string) {
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║         maxdiskusage admission guard         ║")
	fmt.Printf("║         Version: %-28s║\n", version)
	fmt.Printf("║         Listen:  %-28s║\n", listenAddr)
	fmt.Printf("║         Watch:   %-28s║\n", monitoredPath)
	fmt.Println("╚══════════════════════════════════════════════╝")
}

