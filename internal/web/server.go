package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"probmeter/internal/command"
	"probmeter/internal/controller"
	"probmeter/internal/wifi"
)

const maxCommandBytes = 1 << 10

// Controller is the part of the control loop the API needs.
// Implementations must be safe to call concurrently.
type Controller interface {
	Snapshot() controller.Snapshot
	Dispatch(ctx context.Context, line string) (controller.Result, error)
}

type NetworkStatus interface {
	Status(ctx context.Context) (wifi.Status, error)
}

type networkResponse struct {
	wifi.Status
	Connected bool `json:"connected"`
}

type commandError struct {
	Error  string             `json:"error"`
	Usage  string             `json:"usage,omitempty"`
	Result *controller.Result `json:"result,omitempty"`
}

func Handler(ctl Controller, network NetworkStatus, logs *LogBuffer) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctl.Snapshot())
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
		if err != nil {
			http.Error(w, "read body failed", http.StatusBadRequest)
			return
		}
		if len(body) > maxCommandBytes {
			http.Error(w, "command too long", http.StatusRequestEntityTooLarge)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		res, err := ctl.Dispatch(ctx, strings.TrimSpace(string(body)))

		var verr *command.InputValidationError
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, res)
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, commandError{Error: verr.Error(), Usage: command.Usage})
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			writeJSON(w, http.StatusServiceUnavailable, commandError{Error: "control loop busy"})
		default:
			// The command ran (a manual fetch) but the poll failed.
			writeJSON(w, http.StatusBadGateway, commandError{Error: err.Error(), Result: &res})
		}
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/network", func(w http.ResponseWriter, r *http.Request) {
		if network == nil {
			http.Error(w, "network management disabled", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := network.Status(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, networkResponse{Status: st, Connected: st.Connected()})
	}).Methods(http.MethodGet)

	if logs != nil {
		r.HandleFunc("/api/logs", logsHandler(logs)).Methods(http.MethodGet)
	}

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(log.Writer(), r),
	)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      40 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
