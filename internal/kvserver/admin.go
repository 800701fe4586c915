package kvserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// NewAdminMux returns the small HTTP surface alongside the raw-TCP
// line protocol server: /healthz, /stats, and /metrics, using
// chi.NewRouter and its middleware.Logger. chi is an HTTP router and
// has no part in the line protocol itself, which stays on
// net.Listener.
func NewAdminMux(engine *lsm.Engine, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		v := engine.CurrentVersion()
		stats := make(map[string]int, len(v.Levels))
		for level, tables := range v.Levels {
			stats[levelName(level)] = len(tables)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"version_number": v.VersionNumber,
			"flush_counter":  v.FlushCounter,
			"sstables":       stats,
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return r
}

func levelName(level int) string {
	return "L" + strconv.Itoa(level)
}
