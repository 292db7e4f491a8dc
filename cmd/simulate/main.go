package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/LoickBck/MediciNet/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	CreateRatio   float64
	ScheduleRatio float64
	CancelRatio   float64
	ReadRatio     float64
	AdminPasskey  string
}

// DataPool tracks the appointments created during the run so transitions and
// reads target real records.
type DataPool struct {
	Physicians []string

	mu           sync.RWMutex
	appointments []appointmentRef
}

type physician struct {
	Name string `json:"name"`
}

type appointmentRef struct {
	ID     uuid.UUID
	UserID string
}

func (dp *DataPool) AddAppointment(ref appointmentRef) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, ref)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (appointmentRef, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return appointmentRef{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

// Record files one call. Rejected counts 4xx answers, Error counts transport
// failures and 5xx.
func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	avg = lo.Sum(latencies) / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	return lo.Clamp(n*p/100, 0, n-1)
}

type Metrics struct {
	Create    OperationMetrics
	Schedule  OperationMetrics
	Cancel    OperationMetrics
	ReadByID  OperationMetrics
	Dashboard OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	metrics Metrics
	log     zerolog.Logger
}

func main() {
	_ = godotenv.Load()
	log := logging.New(getEnv("APP_ENV", "dev"), getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("create", cfg.CreateRatio).
		Float64("schedule", cfg.ScheduleRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sim.prepare(ctx); err != nil {
		log.Fatal().Err(err).Msg("prepare simulation")
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		CreateRatio:   getFloat("SIM_CREATE_RATIO", 0.4),
		ScheduleRatio: getFloat("SIM_SCHEDULE_RATIO", 0.2),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		AdminPasskey:  os.Getenv("SIM_ADMIN_PASSKEY"),
	}

	total := cfg.CreateRatio + cfg.ScheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.CreateRatio /= total
		cfg.ScheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return errors.New("SIM_DURATION must be > 0")
	}
	if cfg.AdminPasskey == "" && cfg.ScheduleRatio+cfg.CancelRatio > 0 {
		return errors.New("SIM_ADMIN_PASSKEY is required for schedule and cancel traffic")
	}
	return nil
}

// prepare loads the roster and opens an admin session when one is needed.
func (s *Simulator) prepare(ctx context.Context) error {
	var physicians []physician
	status, err := s.call(ctx, http.MethodGet, "/physicians", "", nil, &physicians)
	if err != nil {
		return fmt.Errorf("load physicians: %w", err)
	}
	if status != http.StatusOK || len(physicians) == 0 {
		return fmt.Errorf("load physicians: status %d, %d entries", status, len(physicians))
	}
	s.pool.Physicians = lo.Map(physicians, func(p physician, _ int) string { return p.Name })

	if s.config.AdminPasskey == "" {
		return nil
	}

	var session struct {
		Token string `json:"token"`
	}
	status, err = s.call(ctx, http.MethodPost, "/admin/session", "", map[string]string{"passkey": s.config.AdminPasskey}, &session)
	if err != nil {
		return fmt.Errorf("admin session: %w", err)
	}
	if status != http.StatusCreated {
		return fmt.Errorf("admin session: status %d", status)
	}
	s.token = session.Token
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.CreateRatio:
			s.doCreate(ctx, rng)
		case r < s.config.CreateRatio+s.config.ScheduleRatio:
			s.doSchedule(ctx, rng)
		case r < s.config.CreateRatio+s.config.ScheduleRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			if s.token != "" && rng.Intn(4) == 0 {
				s.doDashboard(ctx)
			} else {
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doCreate(ctx context.Context, rng *rand.Rand) {
	userID := uuid.NewString()
	body := map[string]any{
		"user_id":           userID,
		"patient_id":        uuid.NewString(),
		"patient_name":      gofakeit.Name(),
		"primary_physician": s.randomPhysician(rng),
		"schedule":          time.Now().Add(time.Duration(1+rng.Intn(24*30)) * time.Hour).UTC().Truncate(time.Minute),
		"reason":            gofakeit.RandomString([]string{"Check-up", "Follow-up", "Vaccination", "Consultation"}),
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments", "", body, &created)
	s.record(ctx, &s.metrics.Create, start, status, err)

	if err == nil && status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(appointmentRef{ID: created.ID, UserID: userID})
	}
}

func (s *Simulator) doSchedule(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	body := map[string]any{
		"user_id":           ref.UserID,
		"primary_physician": s.randomPhysician(rng),
		"schedule":          time.Now().Add(time.Duration(1+rng.Intn(24*30)) * time.Hour).UTC().Truncate(time.Minute),
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/admin/appointments/%s/schedule", ref.ID), s.token, body, nil)
	s.record(ctx, &s.metrics.Schedule, start, status, err)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	body := map[string]any{
		"user_id":             ref.UserID,
		"cancellation_reason": gofakeit.RandomString([]string{"Patient unavailable", "Physician on leave", "Duplicate booking"}),
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/admin/appointments/%s/cancel", ref.ID), s.token, body, nil)
	s.record(ctx, &s.metrics.Cancel, start, status, err)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	ref, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments/"+ref.ID.String(), "", nil, nil)
	s.record(ctx, &s.metrics.ReadByID, start, status, err)
}

func (s *Simulator) doDashboard(ctx context.Context) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/admin/appointments", s.token, nil, nil)
	s.record(ctx, &s.metrics.Dashboard, start, status, err)
}

// record skips calls cut short by the end of the run.
func (s *Simulator) record(ctx context.Context, om *OperationMetrics, start time.Time, status int, err error) {
	if err != nil && ctx.Err() != nil {
		return
	}
	om.Record(time.Since(start), status, err)
}

func (s *Simulator) randomPhysician(rng *rand.Rand) string {
	return s.pool.Physicians[rng.Intn(len(s.pool.Physicians))]
}

// call sends a JSON request and decodes a 2xx JSON answer into out when out
// is not nil.
func (s *Simulator) call(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Create", &s.metrics.Create)
	printOperationReport("Schedule", &s.metrics.Schedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("Dashboard", &s.metrics.Dashboard)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
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
