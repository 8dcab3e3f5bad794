// Command civix-snapshot-bench measures session snapshot store latency under
// concurrent load. It seeds one snapshot per simulated device, then runs a
// load phase (cold-start reads used by the enrichment fallback) and a save
// phase (writes issued by login and enrichment).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/civix-platform/civix/session"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		devices     = flag.Int("devices", 50000, "number of device snapshots to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (load + save)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, CIVIX_STORE_REDIS_ADDR or miniredis is used")
		prefix      = flag.String("prefix", "civix-bench", "snapshot key prefix")
	)
	flag.Parse()

	if *devices <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "devices, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("CIVIX_STORE_REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store := session.NewStore(client, *prefix, 24*time.Hour)

	fmt.Printf("seeding %d snapshots...\n", *devices)
	startSeed := time.Now()
	for i := 0; i < *devices; i++ {
		if err := store.Save(ctx, deviceID(i), sessionFor(i, 0)); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loadStats := runPhase(ctx, *devices, *ops, *concurrency, func(ctx context.Context, i, _ int) error {
		_, err := store.Load(ctx, deviceID(i))
		return err
	})
	saveStats := runPhase(ctx, *devices, *ops, *concurrency, func(ctx context.Context, i, op int) error {
		return store.Save(ctx, deviceID(i), sessionFor(i, op))
	})

	fmt.Println("---- results ----")
	printStats("load", loadStats)
	printStats("save", saveStats)
}

// runPhase runs ops calls of fn spread over concurrency workers, each call on
// a random device.
func runPhase(ctx context.Context, devices, ops, concurrency int, fn func(ctx context.Context, device, op int) error) phaseStats {
	var (
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(w)))
			local := make([]time.Duration, 0, ops/concurrency+1)
			for {
				op := int(cursor.Add(1)) - 1
				if op >= ops {
					break
				}
				t0 := time.Now()
				if err := fn(gctx, r.IntN(devices), op); err != nil {
					failures.Add(1)
				}
				local = append(local, time.Since(t0))
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

// percentile expects samples sorted ascending.
func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func deviceID(i int) string {
	return fmt.Sprintf("bench-device-%d", i)
}

var benchRoles = []session.Role{session.RoleCitizen, session.RoleTechnician, session.RoleAuthorityAdmin}

func sessionFor(i, op int) session.Session {
	return session.Session{
		UserID:        fmt.Sprintf("u%d", i),
		DisplayName:   fmt.Sprintf("Bench User %d", i),
		Email:         fmt.Sprintf("u%d@bench.civix.test", i),
		Role:          benchRoles[i%len(benchRoles)],
		Points:        uint32(op % 10000),
		Authenticated: true,
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
