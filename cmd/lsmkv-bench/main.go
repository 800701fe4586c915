// Command lsmkv-bench drives a synthetic write/read workload against
// a local engine and reports throughput and latency using a
// fixed-operation-count timing loop.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func main() {
	dir := flag.String("data-dir", "./bench-data", "benchmark data directory")
	numOps := flag.Int("ops", 100000, "number of put operations")
	valueSize := flag.Int("value-size", 128, "value size in bytes")
	readFraction := flag.Float64("read-fraction", 0.2, "fraction of ops that are reads of a previously written key")
	flag.Parse()

	opts := lsm.Options{Dir: *dir}.WithDefaults()
	if err := os.RemoveAll(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-bench: clean data dir: %v\n", err)
		os.Exit(1)
	}

	db, err := lsm.Open(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-bench: open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	value := make([]byte, *valueSize)
	rand.New(rand.NewSource(1)).Read(value)

	writtenKeys := make([][]byte, 0, *numOps)
	rng := rand.New(rand.NewSource(42))

	var writes, reads, hits int
	var writeLatency, readLatency time.Duration

	start := time.Now()
	for i := 0; i < *numOps; i++ {
		if len(writtenKeys) > 0 && rng.Float64() < *readFraction {
			key := writtenKeys[rng.Intn(len(writtenKeys))]
			t0 := time.Now()
			_, ok, err := db.Get(key)
			readLatency += time.Since(t0)
			reads++
			if err != nil {
				fmt.Fprintf(os.Stderr, "lsmkv-bench: get: %v\n", err)
				os.Exit(1)
			}
			if ok {
				hits++
			}
			continue
		}

		key := []byte(fmt.Sprintf("key-%010d", i))
		t0 := time.Now()
		if err := db.Put(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "lsmkv-bench: put: %v\n", err)
			os.Exit(1)
		}
		writeLatency += time.Since(t0)
		writes++
		writtenKeys = append(writtenKeys, key)
	}
	elapsed := time.Since(start)

	if err := db.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "lsmkv-bench: flush: %v\n", err)
		os.Exit(1)
	}
	db.WaitForCompaction()

	fmt.Printf("total ops:      %d\n", *numOps)
	fmt.Printf("elapsed:        %s\n", elapsed)
	fmt.Printf("throughput:     %.0f ops/sec\n", float64(*numOps)/elapsed.Seconds())
	fmt.Printf("writes:         %d, avg latency %s\n", writes, safeDiv(writeLatency, writes))
	fmt.Printf("reads:          %d (%d hits), avg latency %s\n", reads, hits, safeDiv(readLatency, reads))
}

func safeDiv(d time.Duration, n int) time.Duration {
	if n == 0 {
		return 0
	}
	return d / time.Duration(n)
}
