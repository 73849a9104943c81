// Command peerbonus-loadtest drives many Session Managers against a shared
// Redis session store and an in-process Auth API, and reports login and
// hydration latency.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	peerbonus "github.com/peerbonus/peerbonus-go"
	"github.com/peerbonus/peerbonus-go/authapi"
	"github.com/peerbonus/peerbonus-go/password"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	clients     int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

// client is one simulated device: an account and the Manager holding its
// session.
type client struct {
	email   string
	prefix  string
	manager *peerbonus.Manager
	mu      sync.Mutex
}

type env struct {
	opts   options
	addr   string
	redis  redis.UniversalClient
	api    *authapi.Local
	logger *logrus.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "peerbonus-loadtest",
		Short:        "Measure session login and hydration throughput",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.clients, "clients", 200, "number of simulated clients, one account each")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 32, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 2000, "operations per phase (login + hydrate)")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "pb-load", "session key prefix")
	return cmd
}

func run(ctx context.Context, out io.Writer, opts options) error {
	if opts.clients <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("clients, concurrency, and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	defer cleanup()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer rdb.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	api, err := authapi.NewLocal(ctx, authapi.LocalConfig{
		Hasher: password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})
	if err != nil {
		return err
	}
	e := &env{opts: opts, addr: addr, redis: rdb, api: api, logger: logger}

	fmt.Fprintf(out, "seeding %d clients...\n", opts.clients)
	startSeed := time.Now()
	clients, err := e.seed(ctx)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range clients {
			_ = c.manager.Close()
		}
	}()
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := e.phase(ctx, clients, 7919, func(ctx context.Context, c *client) error {
		_, err := c.manager.Login(ctx, peerbonus.Credentials{Email: c.email, Password: passwordFor(c.email)})
		return err
	})
	hydrateStats := e.phase(ctx, clients, 6151, e.hydrate)

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login", loginStats)
	printStats(out, "hydrate", hydrateStats)
	return nil
}

func (e *env) seed(ctx context.Context) ([]*client, error) {
	clients := make([]*client, e.opts.clients)
	for i := range clients {
		email := fmt.Sprintf("user%d@load.test", i)
		if _, err := e.api.Register(ctx, fmt.Sprintf("User %d", i), email, passwordFor(email)); err != nil {
			return nil, fmt.Errorf("register %s: %w", email, err)
		}
		c := &client{email: email, prefix: fmt.Sprintf("%s:%d", e.opts.prefix, i)}
		m, err := e.manager(c.prefix)
		if err != nil {
			return nil, err
		}
		c.manager = m
		if err := m.Init(ctx); err != nil {
			return nil, err
		}
		if _, err := m.Login(ctx, peerbonus.Credentials{Email: email, Password: passwordFor(email)}); err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		clients[i] = c
	}
	return clients, nil
}

func (e *env) manager(prefix string) (*peerbonus.Manager, error) {
	cfg := peerbonus.DefaultConfig()
	cfg.Storage.Backend = peerbonus.StorageRedis
	cfg.Storage.RedisAddr = e.addr
	cfg.Storage.RedisPrefix = prefix
	return peerbonus.New().
		WithConfig(cfg).
		WithAuthAPI(e.api).
		WithRedis(e.redis).
		WithLogger(e.logger).
		Build()
}

// hydrate restores c's session in a fresh Manager, as a restarted client
// would.
func (e *env) hydrate(ctx context.Context, c *client) error {
	m, err := e.manager(c.prefix)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Init(ctx); err != nil {
		return err
	}
	if !m.IsLoggedIn() {
		return fmt.Errorf("%s: session not restored: %v", c.email, m.LastError())
	}
	return nil
}

func (e *env) phase(ctx context.Context, clients []*client, seed int64, op func(context.Context, *client) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, e.opts.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < e.opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= e.opts.ops {
					return
				}
				c := clients[r.Intn(len(clients))]

				// One operation per client at a time, like a single device.
				c.mu.Lock()
				t0 := time.Now()
				err := op(ctx, c)
				d := time.Since(t0)
				c.mu.Unlock()
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
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

// percentile expects sorted samples.
func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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

func passwordFor(email string) string {
	return "load-" + email + "-9"
}
