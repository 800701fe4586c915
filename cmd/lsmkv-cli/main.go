// Command lsmkv-cli is an interactive read-eval-print loop over a
// local engine instance, using a flat Open/defer-Close shape.
package main

import (
	"fmt"
	"os"

	"github.com/lsmkv/lsmkv/internal/config"
	"github.com/lsmkv/lsmkv/internal/replparser"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func main() {
	cfg := config.Load()

	db, err := lsm.Open(cfg.Options)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-cli: open %s: %v\n", cfg.Options.Dir, err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("lsmkv-cli: %s (put/get/delete/flush/clear/dump)\n", cfg.Options.Dir)
	repl := replparser.New(db, os.Stdout)
	if err := repl.Run(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-cli: %v\n", err)
		os.Exit(1)
	}
}
