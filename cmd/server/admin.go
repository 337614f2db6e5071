package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"waybill/cmd/server/config"
	"waybill/internal/observability"
	"waybill/internal/saga"

	"github.com/rs/zerolog"
)

// sagaStateReader is the orchestrator surface the admin endpoint consumes.
type sagaStateReader interface {
	GetSagaState(orderID string) (saga.Snapshot, bool)
}

func newAdminMux(states sagaStateReader, metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))
	mux.Handle("/sagas", sagaStateHandler(states))
	return mux
}

// sagaStateHandler serves GET /sagas?order_id=... with the saga snapshot.
func sagaStateHandler(states sagaStateReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
		if orderID == "" {
			http.Error(w, "order_id is required", http.StatusBadRequest)
			return
		}
		snap, ok := states.GetSagaState(orderID)
		if !ok {
			http.Error(w, "saga not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
}

func startAdminServer(states sagaStateReader, metrics *observability.Metrics, logger zerolog.Logger) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: newAdminMux(states, metrics),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	return srv, nil
}
