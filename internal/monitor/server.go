package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MiraeNK/mesline/internal/fulfillment"
	"github.com/MiraeNK/mesline/internal/machine"
	"github.com/MiraeNK/mesline/internal/model"
	"github.com/MiraeNK/mesline/internal/telemetry"
)

// Line is what the monitor reads.
type Line interface {
	View(ctx context.Context) (fulfillment.View, error)
	History(ctx context.Context, limit int) ([]model.HistoryRecord, error)
	Policy() fulfillment.Policy
	Now() time.Time
}

// Handler serves the read-only monitoring API.
type Handler struct {
	line        Line
	maintenance machine.MaintenancePolicy
	metrics     *telemetry.Metrics
}

// Router builds the HTTP routes. metrics may be nil, in which case
// /metrics answers 404.
func Router(line Line, mp machine.MaintenancePolicy, metrics *telemetry.Metrics) http.Handler {
	h := &Handler{line: line, maintenance: mp, metrics: metrics}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.ordersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.orderHandler).Methods(http.MethodGet)
	api.HandleFunc("/history", h.historyHandler).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.metricsHandler).Methods(http.MethodGet)

	return logMiddleware(r)
}

func (h *Handler) statusHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.line.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BuildStatus(v, h.line.Now(), h.line.Policy(), h.maintenance))
}

func (h *Handler) ordersHandler(w http.ResponseWriter, r *http.Request) {
	v, err := h.line.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	orders := v.Orders
	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) orderHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, err := h.line.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	o, ok := v.Order(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "order " + id + " is not in the queue"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) historyHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := h.line.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// metricsHandler refreshes the gauges from a fresh view before scraping.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		if v, err := h.line.View(r.Context()); err != nil {
			slog.Warn("metrics refresh failed", "error", err)
		} else {
			h.refresh(v)
		}
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

func (h *Handler) refresh(v fulfillment.View) {
	h.metrics.SetQueueDepth(string(model.OrderQueued), len(v.Queued()))
	h.metrics.SetQueueDepth(string(model.OrderProcessing), len(v.Processing()))
	st := BuildStatus(v, h.line.Now(), h.line.Policy(), h.maintenance)
	for _, m := range st.Machines {
		h.metrics.SetMachine(m.ID, time.Duration(m.UptimeMs)*time.Millisecond, m.Status == model.PowerOn, m.HoursUntil)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	slog.Error("monitor request failed", "error", err)
	code := string(fulfillment.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: code, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func logMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		slog.Debug("http request",
			"method", r.Method,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("monitor listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
