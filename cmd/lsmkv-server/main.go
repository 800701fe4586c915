// Command lsmkv-server runs the line-protocol TCP server and its
// admin HTTP surface over a shared engine instance, wired through a
// dig container of constructor functions.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/lsmkv/lsmkv/internal/config"
	"github.com/lsmkv/lsmkv/internal/kvserver"
	"github.com/lsmkv/lsmkv/internal/obs"
	"github.com/lsmkv/lsmkv/internal/replication"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func main() {
	container := dig.New()

	constructors := []interface{}{
		config.Load,
		provideEngine,
		provideRegistry,
		provideRegisterer,
		obs.NewMetrics,
		provideReplicationConfig,
		provideLeader,
		provideKVServer,
		provideAdminMux,
	}
	for _, ctor := range constructors {
		if err := container.Provide(ctor); err != nil {
			fmt.Fprintf(os.Stderr, "lsmkv-server: provide: %v\n", err)
			os.Exit(1)
		}
	}

	err := container.Invoke(func(
		cfg config.Config,
		engine *lsm.Engine,
		srv *kvserver.Server,
		mux http.Handler,
		_ *replication.Leader,
	) {
		defer engine.Close()

		go func() {
			addr := fmt.Sprintf(":%d", cfg.AdminPort)
			fmt.Printf("lsmkv-server: admin http on %s\n", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "lsmkv-server: admin server: %v\n", err)
			}
		}()

		if err := srv.ListenAndServe(); err != nil {
			fmt.Fprintf(os.Stderr, "lsmkv-server: %v\n", err)
			os.Exit(1)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-server: %v\n", err)
		os.Exit(1)
	}
}

func provideEngine(cfg config.Config) (*lsm.Engine, error) {
	return lsm.Open(cfg.Options)
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer {
	return reg
}

// provideReplicationConfig reads peer apply URLs from the environment
// so a node can be pointed at followers without a config file;
// leaving it unset disables replication entirely.
func provideReplicationConfig() []string {
	if peers := os.Getenv("LSMKV_REPLICATION_PEERS"); peers != "" {
		return splitNonEmpty(peers, ',')
	}
	return nil
}

func provideLeader(engine *lsm.Engine, peers []string) *replication.Leader {
	var sender *replication.Sender
	if len(peers) > 0 {
		sender = replication.NewSender(peers)
	}
	return replication.NewLeader(engine, sender, nil)
}

func provideKVServer(cfg config.Config, engine *lsm.Engine, metrics *obs.Metrics) *kvserver.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	return kvserver.New(addr, engine, metrics)
}

func provideAdminMux(engine *lsm.Engine, reg *prometheus.Registry) http.Handler {
	return kvserver.NewAdminMux(engine, reg)
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if s[start:i] != "" {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if s[start:] != "" {
		out = append(out, s[start:])
	}
	return out
}
