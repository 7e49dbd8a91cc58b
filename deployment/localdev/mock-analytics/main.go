package main

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/mirador-reliability/internal/utils"
)

type event struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Class       string   `json:"class"`
	Method      string   `json:"method"`
	Application string   `json:"application"`
	Tiers       []string `json:"tiers"`
	Hits        int64    `json:"hits"`
	Invocations int64    `json:"invocations"`
}

type filter struct {
	Applications []string `json:"applications"`
	Deployments  []string `json:"deployments"`
	Types        []string `json:"types"`
}

type request struct {
	ServiceID  string `json:"service_id"`
	ViewName   string `json:"view_name"`
	TimeFilter string `json:"time_filter"`
	Baseline   int    `json:"baseline_minutes"`
	PointsWant int    `json:"points_wanted"`
	Group      string `json:"group"`
	Filter     filter `json:"filter"`
}

var events = []event{
	{ID: "e1", Type: "Logged Error", Name: "cart failure", Class: "CartService", Method: "add", Application: "checkout", Tiers: []string{"Web"}, Hits: 420, Invocations: 9000},
	{ID: "e2", Type: "Exception", Name: "payment timeout", Class: "PaymentClient", Method: "charge", Application: "payments", Tiers: []string{"Backend"}, Hits: 120, Invocations: 3000},
	{ID: "e3", Type: "HTTP Error", Name: "inventory 503", Class: "InventoryClient", Method: "reserve", Application: "inventory", Tiers: []string{"Backend", "Queue"}, Hits: 75, Invocations: 2000},
	{ID: "e4", Type: "Logged Warning", Name: "slow render", Class: "Renderer", Method: "render", Application: "checkout", Tiers: []string{"Web"}, Hits: 30, Invocations: 9000},
}

var groups = map[string][]string{
	"storefront": {"checkout", "inventory"},
}

func main() {
	logger := utils.NewLogger("info", false)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/views/resolve", handle(func(req request) (any, int) {
		if req.ViewName == "" {
			return nil, http.StatusNotFound
		}
		return map[string]any{"id": "view-" + strings.ReplaceAll(strings.ToLower(req.ViewName), " ", "-"), "name": req.ViewName}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/regression/window", handle(func(req request) (any, int) {
		tf, err := utils.ParseTimeFilter(req.TimeFilter)
		if err != nil {
			return map[string]any{"error": err.Error()}, http.StatusBadRequest
		}
		from, to := tf.Window(time.Now().UTC())
		return map[string]any{
			"active_start":     from,
			"active_end":       to,
			"active_minutes":   tf.Minutes(),
			"baseline_minutes": req.Baseline,
		}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/regression", handle(func(req request) (any, int) {
		seed := seedFor(req.Filter)
		return map[string]any{
			"new_issues":           seed % 4,
			"severe_new_issues":    seed % 2,
			"regressions":          seed % 3,
			"critical_regressions": (seed / 3) % 2,
			"volume":               100 + seed%900,
		}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/events", handle(func(req request) (any, int) {
		return map[string]any{"events": matching(req.Filter)}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/graphs/volume", handle(func(req request) (any, int) {
		points := req.PointsWant
		if points <= 0 {
			points = 24
		}
		now := time.Now().UTC().Truncate(time.Hour)
		matched := matching(req.Filter)
		out := make([]map[string]any, 0, points)
		for i := 0; i < points; i++ {
			contributors := make([]map[string]any, 0, len(matched))
			for j, e := range matched {
				contributors = append(contributors, map[string]any{"event_id": e.ID, "hits": e.Hits / int64(points) * int64(1+(i+j)%3)})
			}
			out = append(out, map[string]any{"time": now.Add(time.Duration(i-points+1) * time.Hour), "contributors": contributors})
		}
		return map[string]any{"points": out}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/transactions", handle(func(req request) (any, int) {
		seed := seedFor(req.Filter)
		return map[string]any{"transactions": []map[string]any{
			{"name": "GET /cart", "invocations": 1200, "avg_time_ms": 180 + seed%200, "baseline_invocations": 1100, "baseline_avg_time_ms": 150, "baseline_std_dev_ms": 20},
			{"name": "POST /checkout", "invocations": 300, "avg_time_ms": 420, "baseline_invocations": 280, "baseline_avg_time_ms": 400, "baseline_std_dev_ms": 35},
			{"name": "GET /health", "state": "ok", "invocations": 5000, "avg_time_ms": 2},
		}}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/deployments", handle(func(request) (any, int) {
		now := time.Now().UTC()
		return map[string]any{"deployments": []map[string]any{
			{"name": "v1.9", "first_seen": now.Add(-72 * time.Hour), "last_seen": now.Add(-24 * time.Hour)},
			{"name": "v1.10", "active": true, "first_seen": now.Add(-24 * time.Hour), "last_seen": now},
			{"name": "canary", "active": true, "first_seen": now.Add(-2 * time.Hour), "last_seen": now},
		}}, http.StatusOK
	}))

	mux.HandleFunc("/api/v1/groups/expand", handle(func(req request) (any, int) {
		members, ok := groups[req.Group]
		if !ok {
			return nil, http.StatusNotFound
		}
		return map[string]any{"members": members}, http.StatusOK
	}))

	addr := ":8080"
	if v := os.Getenv("MOCK_ANALYTICS_ADDRESS"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("mock analytics listening", slog.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func handle(fn func(request) (any, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payload, status := fn(req)
		if payload == nil {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, payload)
	}
}

func matching(f filter) []event {
	if len(f.Applications) == 0 && len(f.Types) == 0 {
		return events
	}
	out := make([]event, 0, len(events))
	for _, e := range events {
		if len(f.Applications) > 0 && !contains(f.Applications, e.Application) {
			continue
		}
		if len(f.Types) > 0 && !contains(f.Types, e.Type) && !overlaps(f.Types, e.Tiers) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func overlaps(values, others []string) bool {
	for _, o := range others {
		if contains(values, o) {
			return true
		}
	}
	return false
}

// seedFor derives stable fake counts from the narrowed filter.
func seedFor(f filter) int {
	h := fnv.New32a()
	for _, part := range [][]string{f.Applications, f.Deployments, f.Types} {
		_, _ = h.Write([]byte(strings.Join(part, ",")))
		_, _ = h.Write([]byte{0})
	}
	return int(h.Sum32() % 1000)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
