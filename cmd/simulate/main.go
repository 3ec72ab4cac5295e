package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/salon-scheduling/internal/api"
	"github.com/hackgods/salon-scheduling/internal/config"
	"github.com/hackgods/salon-scheduling/internal/db"
	"github.com/hackgods/salon-scheduling/internal/layout"
	"github.com/hackgods/salon-scheduling/internal/logging"
	"github.com/hackgods/salon-scheduling/internal/timemodel"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	AgentRatio    float64
	ManualRatio   float64
	CancelRatio   float64
	ReadRatio     float64
	ResourceLimit int
	Resources     []string
	Date          timemodel.Date
	Window        timemodel.Interval
	PostgresDSN   string
}

// DataPool holds the resources under load and the holds the agent workers
// still own.
type DataPool struct {
	Resources []string
	mu        sync.Mutex
	holds     []uuid.UUID
}

func (dp *DataPool) AddHold(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.holds = append(dp.holds, id)
}

// TakeHold removes and returns a random hold.
func (dp *DataPool) TakeHold(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.holds) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.holds))
	id := dp.holds[idx]
	dp.holds[idx] = dp.holds[len(dp.holds)-1]
	dp.holds = dp.holds[:len(dp.holds)-1]
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min0(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min0(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

func min0(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type Metrics struct {
	AgentPropose  OperationMetrics
	AgentConfirm  OperationMetrics
	ManualBooking OperationMetrics
	Cancel        OperationMetrics
	Calendar      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *slog.Logger
	metrics Metrics
}

func main() {
	cfg, logger := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger.Info("simulator starting",
		"duration", cfg.Duration, "workers", cfg.Workers, "date", cfg.Date,
		"agent", cfg.AgentRatio, "manual", cfg.ManualRatio, "cancel", cfg.CancelRatio, "read", cfg.ReadRatio)

	resources := cfg.Resources
	if len(resources) == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			cancel()
			logger.Error("connect postgres", "err", err)
			os.Exit(1)
		}
		resources, err = loadResources(ctx, pgPool, cfg.ResourceLimit)
		pgPool.Close()
		cancel()
		if err != nil {
			logger.Error("load resources", "err", err)
			os.Exit(1)
		}
	}
	logger.Info("resources loaded", "count", len(resources))

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{Resources: resources},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	violations, err := sim.VerifyCalendar(context.Background())
	if err != nil {
		logger.Error("calendar verification failed", "err", err)
	}
	sim.PrintReport(violations)
	if violations > 0 {
		os.Exit(2)
	}
}

func loadConfig() (SimConfig, *slog.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		logging.NewLogger("simulate", "info").Error("failed to load base config", "err", err)
		os.Exit(1)
	}
	logger := logging.NewLogger("simulate", baseCfg.LogLevel)

	date := timemodel.DateOf(time.Now().In(baseCfg.Location).AddDate(0, 0, 1))
	if v := os.Getenv("SIM_DATE"); v != "" {
		if date, err = timemodel.ParseDate(v); err != nil {
			logger.Error("invalid SIM_DATE", "err", err)
			os.Exit(1)
		}
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		AgentRatio:    getFloat("SIM_AGENT_RATIO", 0.45),
		ManualRatio:   getFloat("SIM_MANUAL_RATIO", 0.15),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		ResourceLimit: getInt("SIM_RESOURCE_LIMIT", 20),
		Resources:     splitList(os.Getenv("SIM_RESOURCES")),
		Date:          date,
		Window:        baseCfg.BusinessHours(),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.AgentRatio + cfg.ManualRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.AgentRatio /= total
		cfg.ManualRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, logger
}

func validateConfig(cfg SimConfig) error {
	if len(cfg.Resources) == 0 && cfg.PostgresDSN == "" {
		return fmt.Errorf("set SIM_RESOURCES or POSTGRES_DSN to pick the professionals under load")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadResources(ctx context.Context, pool *pgxpool.Pool, limit int) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM professionals ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no professionals loaded, run cmd/seed first")
	}
	return ids, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.AgentRatio:
				s.doAgentFlow(ctx, rng)
			case r < c.AgentRatio+c.ManualRatio:
				s.doManualBooking(ctx, rng)
			case r < c.AgentRatio+c.ManualRatio+c.CancelRatio:
				s.doCancel(ctx, rng)
			default:
				s.doCalendar(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) (string, string, uint) {
	durations := []uint{30, 45, 60}
	d := durations[rng.Intn(len(durations))]
	slots := (int(s.config.Window.DurationMinutes) - int(d)) / 15
	start := s.config.Window.Start + timemodel.TimeOfDay(rng.Intn(slots+1)*15)
	rid := s.pool.Resources[rng.Intn(len(s.pool.Resources))]
	return rid, start.String(), d
}

func (s *Simulator) propose(ctx context.Context, rng *rand.Rand, origin string, om *OperationMetrics) (uuid.UUID, bool) {
	rid, start, d := s.randomSlot(rng)
	var appt api.AppointmentResponse
	status, err := s.call(ctx, om, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		ResourceID:      rid,
		Date:            s.config.Date.String(),
		Start:           start,
		DurationMinutes: d,
		Origin:          origin,
	}, &appt)
	if err != nil || status != http.StatusCreated {
		return uuid.Nil, false
	}
	return appt.ID, true
}

// doAgentFlow proposes a hold and confirms a random earlier hold, like an
// agent closing one negotiation while opening another.
func (s *Simulator) doAgentFlow(ctx context.Context, rng *rand.Rand) {
	if id, ok := s.propose(ctx, rng, "agent", &s.metrics.AgentPropose); ok {
		s.pool.AddHold(id)
	}

	id, ok := s.pool.TakeHold(rng)
	if !ok {
		return
	}
	_, _ = s.call(ctx, &s.metrics.AgentConfirm, http.MethodPost,
		"/appointments/"+id.String()+"/confirm", api.ConfirmAppointmentRequest{Actor: "agent"}, nil)
}

func (s *Simulator) doManualBooking(ctx context.Context, rng *rand.Rand) {
	id, ok := s.propose(ctx, rng, "manual", &s.metrics.ManualBooking)
	if !ok {
		return
	}
	_, _ = s.call(ctx, &s.metrics.ManualBooking, http.MethodPost,
		"/appointments/"+id.String()+"/confirm", api.ConfirmAppointmentRequest{Actor: "manual"}, nil)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakeHold(rng)
	if !ok {
		return
	}
	_, _ = s.call(ctx, &s.metrics.Cancel, http.MethodPost,
		"/appointments/"+id.String()+"/cancel", api.CancelAppointmentRequest{Reason: "client declined"}, nil)
}

func (s *Simulator) doCalendar(ctx context.Context, rng *rand.Rand) {
	n := 1 + rng.Intn(min0(4, len(s.pool.Resources)))
	perm := rng.Perm(len(s.pool.Resources))[:n]
	ids := make([]string, 0, n)
	for _, i := range perm {
		ids = append(ids, s.pool.Resources[i])
	}
	_, _ = s.call(ctx, &s.metrics.Calendar, http.MethodGet, s.calendarPath(ids), nil, nil)
}

func (s *Simulator) calendarPath(resources []string) string {
	q := url.Values{}
	q.Set("date", s.config.Date.String())
	q.Set("resources", strings.Join(resources, ","))
	return "/calendar?" + q.Encode()
}

// VerifyCalendar counts pairs of overlapping confirmed boxes per resource.
// Any non-zero result is a double booking.
func (s *Simulator) VerifyCalendar(ctx context.Context) (int, error) {
	var cal api.CalendarResponse
	status, err := s.call(ctx, nil, http.MethodGet, s.calendarPath(s.pool.Resources), nil, &cal)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("calendar returned %d", status)
	}

	byResource := make(map[string][]layout.EventBox)
	for _, b := range cal.Boxes {
		if b.State == layout.StateConfirmed {
			byResource[b.ResourceID] = append(byResource[b.ResourceID], b)
		}
	}

	violations := 0
	for rid, boxes := range byResource {
		for i := range boxes {
			for j := i + 1; j < len(boxes); j++ {
				a, b := boxes[i], boxes[j]
				if a.Top < b.Top+b.Height && b.Top < a.Top+a.Height {
					violations++
					s.logger.Error("double booking detected", "resource_id", rid, "a", a.AppointmentID, "b", b.AppointmentID)
				}
			}
		}
	}
	return violations, nil
}

func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if om != nil && ctx.Err() == nil {
			om.Record(latency, 0, err)
		}
		return 0, err
	}
	defer resp.Body.Close()

	if om != nil {
		om.Record(latency, resp.StatusCode, nil)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport(violations int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Resources: %d on %s\n", len(s.pool.Resources), s.config.Date)
	fmt.Printf("Double bookings: %d\n", violations)
	fmt.Println()

	printOperationReport("Agent propose", &s.metrics.AgentPropose)
	printOperationReport("Agent confirm", &s.metrics.AgentConfirm)
	printOperationReport("Manual booking", &s.metrics.ManualBooking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Calendar", &s.metrics.Calendar)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
