// Package metrics exposes Prometheus-compatible metrics on a dedicated
// listener.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

var (
	// GateApprovals counts invocations where every required condition
	// verified true and the custody network was exercised.
	GateApprovals = metrics.NewCounter("signing_gate_approvals_total")

	// GateDenials counts invocations denied because conditions were not met.
	GateDenials = metrics.NewCounter("signing_gate_denials_total")

	// GateSignFailures counts invocations where the custody call failed.
	GateSignFailures = metrics.NewCounter("signing_gate_sign_failures_total")

	// ProposalsBuilt counts successfully built proposals.
	ProposalsBuilt = metrics.NewCounter("signing_gate_proposals_built_total")
)

// MetricsServer serves the metrics endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. The namespace is exposed as
// a constant label on the process metrics.
func New(namespace, addr string) (*MetricsServer, error) {
	if addr == "" {
		return nil, fmt.Errorf("metrics listen address is empty")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
		fmt.Fprintf(w, "namespace{service=%q} 1\n", namespace)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving metrics until shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
