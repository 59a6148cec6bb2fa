// main.go - Traffic generator for folio
//
// Drives simulated portfolio visitors through the tracker client against a
// running server and reports status codes and latency percentiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"folio/internal/tracker"
	"folio/internal/tracking"
	"folio/internal/visitors"
)

// GenConfig holds the configuration for a run
type GenConfig struct {
	BaseURL     string
	Concurrency int
	Visitors    int
	Duration    time.Duration
	Timeout     time.Duration
	Verbose     bool
}

// GenStats holds statistics about a run
type GenStats struct {
	mu          sync.Mutex
	StatusCodes map[int]int64
	Latencies   []time.Duration
	Failures    int64
	Beacons     int64
	PageViews   int64
	StartTime   time.Time
	EndTime     time.Time
}

func (s *GenStats) record(latency time.Duration, err error) {
	status := http.StatusOK
	var statusErr *tracker.StatusError
	switch {
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
	case err != nil:
		atomic.AddInt64(&s.Failures, 1)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusCodes[status]++
	s.Latencies = append(s.Latencies, latency)
}

// measuringTransport times every request/response send
type measuringTransport struct {
	inner tracker.Transport
	stats *GenStats
}

func (m *measuringTransport) Send(ctx context.Context, route string, payload any) error {
	start := time.Now()
	err := m.inner.Send(ctx, route, payload)
	m.stats.record(time.Since(start), err)
	return err
}

func (m *measuringTransport) Beacon(route string, payload any) {
	atomic.AddInt64(&m.stats.Beacons, 1)
	m.inner.Beacon(route, payload)
}

var (
	modes       = []string{tracking.ModeXR, tracking.ModeFullStack}
	pathnames   = []string{"/", "/projects", "/publications", "/resume"}
	referrers   = []string{"", "https://www.google.com/", "https://www.linkedin.com/feed/", "https://news.ycombinator.com/"}
	resolutions = []string{"390x844", "820x1180", "1440x900", "1920x1080"}
	eventTypes  = []tracking.EventType{
		tracking.EventProjectVideoPlay,
		tracking.EventProjectLinkClick,
		tracking.EventResumeDownload,
		tracking.EventSocialLinkClick,
		tracking.EventContactEmailClick,
	}
)

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	concurrency := flag.Int("c", 10, "Number of concurrent visitors")
	visitorCount := flag.Int("n", 100, "Total number of simulated page views (0 = until -d elapses)")
	duration := flag.Duration("d", time.Minute, "Maximum duration of the run")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := &GenConfig{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Visitors:    *visitorCount,
		Duration:    *duration,
		Timeout:     *timeout,
		Verbose:     *verbose,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	// The ingestion routes only accept browser requests; present as one.
	httpTransport := tracker.NewHTTPTransport(cfg.BaseURL,
		tracker.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		tracker.WithHeader("Sec-Fetch-Site", "cross-site"),
		tracker.WithHeader("User-Agent", "folio-trafficgen/1.0"),
		tracker.WithLogger(logger),
	)

	stats := &GenStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	transport := &measuringTransport{inner: httpTransport, stats: stats}

	fmt.Printf("Generating traffic against %s with %d concurrent visitors\n", cfg.BaseURL, cfg.Concurrency)
	run(ctx, cfg, transport, stats, logger)

	httpTransport.Wait()
	stats.EndTime = time.Now()
	printResults(stats)
}

func run(ctx context.Context, cfg *GenConfig, transport tracker.Transport, stats *GenStats, logger *slog.Logger) {
	var remaining atomic.Int64
	remaining.Store(int64(cfg.Visitors))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			for ctx.Err() == nil {
				if cfg.Visitors > 0 && remaining.Add(-1) < 0 {
					return
				}
				if err := simulatePageView(ctx, transport, rng); err != nil {
					logger.Debug("Page view failed", slog.Int("worker", workerID), slog.Any("error", err))
				}
				atomic.AddInt64(&stats.PageViews, 1)
			}
		}(i)
	}
	wg.Wait()
}

// simulatePageView walks one visitor through a compressed page view: visit,
// a few scroll and section samples, maybe an interaction, then unload.
func simulatePageView(ctx context.Context, transport tracker.Transport, rng *rand.Rand) error {
	resolver := visitors.NewResolver(visitors.NewMemoryStore(visitors.State{
		Mode: modes[rng.Intn(len(modes))],
	}))
	if err := resolver.Init(ctx); err != nil {
		return err
	}

	pv := tracker.NewPageView(tracker.PageViewOptions{
		Transport:        transport,
		Identity:         resolver.Identity(),
		Mode:             resolver.Mode(),
		Pathname:         pathnames[rng.Intn(len(pathnames))],
		Referrer:         referrers[rng.Intn(len(referrers))],
		ScreenResolution: resolutions[rng.Intn(len(resolutions))],
		UserAgent:        "folio-trafficgen/1.0",
	})
	defer pv.Close()

	if err := pv.TrackVisit(ctx); err != nil {
		return err
	}

	depth := 0.0
	for _, section := range tracking.SectionOrder {
		if rng.Float64() < 0.3 {
			break
		}
		if err := pv.Intersect(ctx, section, 0.5+rng.Float64()/2); err != nil {
			return err
		}
		depth += 100 / float64(len(tracking.SectionOrder))
		pv.Scroll(depth)
		sleep(ctx, time.Duration(100+rng.Intn(300))*time.Millisecond)
		if err := pv.Intersect(ctx, section, 0); err != nil {
			return err
		}
	}

	if rng.Float64() < 0.4 {
		eventType := eventTypes[rng.Intn(len(eventTypes))]
		if err := pv.TrackEvent(ctx, eventType, "trafficgen", map[string]any{"worker": true}); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// printResults displays the run results in aligned tables
func printResults(stats *GenStats) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	total := stats.EndTime.Sub(stats.StartTime)
	sort.Slice(stats.Latencies, func(i, j int) bool { return stats.Latencies[i] < stats.Latencies[j] })

	fmt.Println("\nTraffic Generation Results:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Duration\t%v\n", total.Round(time.Millisecond))
	fmt.Fprintf(w, "Page views\t%d\n", stats.PageViews)
	fmt.Fprintf(w, "Requests\t%d\n", len(stats.Latencies))
	fmt.Fprintf(w, "Beacons\t%d\n", stats.Beacons)
	fmt.Fprintf(w, "Transport failures\t%d\n", stats.Failures)
	if total > 0 {
		fmt.Fprintf(w, "Requests/sec\t%.2f\n", float64(len(stats.Latencies))/total.Seconds())
	}
	w.Flush()

	codes := make([]int, 0, len(stats.StatusCodes))
	for code := range stats.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Println("\nStatus Codes:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", "CODE", "COUNT")
	for _, code := range codes {
		fmt.Fprintf(w, "%d\t%d\n", code, stats.StatusCodes[code])
	}
	w.Flush()

	fmt.Println("\nLatency:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", "PERCENTILE", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "----------", strings.Repeat("-", 5))
	for _, p := range []struct {
		label string
		value float64
	}{{"50th (Median)", 0.5}, {"90th", 0.9}, {"95th", 0.95}, {"99th", 0.99}} {
		fmt.Fprintf(w, "%s\t%v\n", p.label, percentile(stats.Latencies, p.value).Round(time.Microsecond))
	}
	w.Flush()
}
