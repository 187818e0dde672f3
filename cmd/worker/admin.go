package main

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/receiving-verifier/internal/bootstrap"
	"github.com/kirillkom/receiving-verifier/internal/core/domain"
)

func adminHandler(app *bootstrap.Worker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /audit/orders/{order_id}", func(w http.ResponseWriter, r *http.Request) {
		events, err := app.Audit.History(r.Context(), r.PathValue("order_id"))
		if err != nil {
			status := http.StatusInternalServerError
			if domain.IsKind(err, domain.ErrInvalidInput) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order_id": r.PathValue("order_id"), "verifications": events})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
