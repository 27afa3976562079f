// Package metrics exposes the relay's Prometheus metrics on a bare
// /metrics endpoint, distinct from the dashboard/administrative API spec.md
// excludes as a non-goal.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bedrockrelay_sessions_active",
		Help: "Number of sessions currently open between a client and the remote server.",
	})
	LoginsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bedrockrelay_logins_total",
		Help: "Number of client logins that reached the playing phase.",
	})
)

func init() {
	prometheus.MustRegister(SessionsActive, LoginsTotal)
}

// Serve starts the /metrics HTTP listener and blocks until ctx is
// cancelled. A listener failure is logged and Serve returns; metrics
// exposition is observability, not a load-bearing part of the relay.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Info("metrics listening on %s", addr)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
