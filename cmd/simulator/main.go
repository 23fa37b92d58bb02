package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/intersection-twin/internal/lane"
	"github.com/ukydev/intersection-twin/internal/vehicle"
	"gonum.org/v1/gonum/stat/distuv"
)

// spawnResult is the outcome of one spawn request.
type spawnResult int

const (
	spawnCreated spawnResult = iota
	spawnBlocked
	spawnThrottled
	spawnFailed
)

// minGap keeps bursts of arrivals from hammering the API.
const minGap = 10 * time.Millisecond

// generatorConfig controls the traffic generator.
type generatorConfig struct {
	APIURL string
	// Interval is the mean gap between arrivals; gaps are exponentially
	// distributed so arrivals form a Poisson process.
	Interval time.Duration
	Weights  [lane.Count]float64
	// OverrideEvery sends a random override after that many spawn attempts;
	// zero disables overrides.
	OverrideEvery int
	OverrideMs    int64
	AuthToken     string
}

type stats struct {
	Created, Blocked, Throttled, Failed, Overrides int
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func authorizedPost(url, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return httpClient.Do(req)
}

// parseWeights reads "w0,w1,w2,w3". Weights must be non-negative and not all
// zero.
func parseWeights(s string) ([lane.Count]float64, error) {
	var w [lane.Count]float64
	parts := strings.Split(s, ",")
	if len(parts) != lane.Count {
		return w, fmt.Errorf("want %d lane weights, got %d", lane.Count, len(parts))
	}
	total := 0.0
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || f < 0 {
			return w, fmt.Errorf("invalid weight %q for lane %d", p, i)
		}
		w[i] = f
		total += f
	}
	if total == 0 {
		return w, fmt.Errorf("all lane weights are zero")
	}
	return w, nil
}

func pickLane(r *rand.Rand, weights [lane.Count]float64) lane.ID {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	x := r.Float64() * total
	for i, w := range weights {
		if x < w {
			return lane.ID(i)
		}
		x -= w
	}
	// Rounding can leave x just past the last bucket.
	for i := lane.Count - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return lane.ID(i)
		}
	}
	return 0
}

func spawnVehicle(apiURL, token string, l lane.ID) (spawnResult, error) {
	resp, err := authorizedPost(fmt.Sprintf("%s/lanes/%d/vehicles", apiURL, l), token, nil)
	if err != nil {
		return spawnFailed, fmt.Errorf("failed to spawn vehicle: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var v vehicle.Vehicle
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return spawnFailed, fmt.Errorf("failed to decode response: %w", err)
		}
		log.WithFields(log.Fields{"vehicle_id": v.ID, "lane": int(l)}).Info("Spawned vehicle")
		return spawnCreated, nil
	case http.StatusConflict:
		log.WithField("lane", int(l)).Debug("Spawn point occupied")
		return spawnBlocked, nil
	case http.StatusTooManyRequests:
		return spawnThrottled, nil
	default:
		return spawnFailed, fmt.Errorf("spawn failed with status: %d", resp.StatusCode)
	}
}

func sendOverride(apiURL, token string, l lane.ID, ms int64) error {
	data, err := json.Marshal(map[string]int64{"lane": int64(l), "duration_ms": ms})
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}
	resp, err := authorizedPost(apiURL+"/override", token, data)
	if err != nil {
		return fmt.Errorf("failed to send override: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("override rejected with status: %d", resp.StatusCode)
	}
	log.WithFields(log.Fields{"lane": int(l), "duration_ms": ms}).Info("Sent override")
	return nil
}

// step performs one generator tick: a spawn attempt and, every OverrideEvery
// attempts, an override.
func step(cfg generatorConfig, r *rand.Rand, attempt int, st *stats) {
	res, err := spawnVehicle(cfg.APIURL, cfg.AuthToken, pickLane(r, cfg.Weights))
	if err != nil {
		log.WithError(err).Warn("Spawn request failed")
	}
	switch res {
	case spawnCreated:
		st.Created++
	case spawnBlocked:
		st.Blocked++
	case spawnThrottled:
		st.Throttled++
	default:
		st.Failed++
	}

	if cfg.OverrideEvery > 0 && cfg.AuthToken != "" && attempt%cfg.OverrideEvery == 0 {
		if err := sendOverride(cfg.APIURL, cfg.AuthToken, lane.ID(r.IntN(lane.Count)), cfg.OverrideMs); err != nil {
			log.WithError(err).Warn("Override request failed")
			return
		}
		st.Overrides++
	}
}

// arrivals returns a generator of exponentially distributed gaps with the
// given mean.
func arrivals(mean time.Duration, src rand.Source) func() time.Duration {
	dist := distuv.Exponential{Rate: 1 / mean.Seconds(), Src: src}
	return func() time.Duration {
		gap := time.Duration(dist.Rand() * float64(time.Second))
		if gap < minGap {
			gap = minGap
		}
		return gap
	}
}

func run(ctx context.Context, cfg generatorConfig, r *rand.Rand, next func() time.Duration) stats {
	var st stats
	timer := time.NewTimer(next())
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return st
		case <-timer.C:
			step(cfg, r, attempt, &st)
			timer.Reset(next())
		}
	}
}

func loadConfig() generatorConfig {
	_ = godotenv.Load()

	cfg := generatorConfig{
		APIURL:     os.Getenv("API_BASE_URL"),
		Interval:   time.Second,
		Weights:    [lane.Count]float64{1, 1, 1, 1},
		OverrideMs: 5000,
		AuthToken:  os.Getenv("SIM_AUTH_TOKEN"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "http://localhost:8080/api"
	}
	if v := os.Getenv("SPAWN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("LANE_WEIGHTS"); v != "" {
		if w, err := parseWeights(v); err == nil {
			cfg.Weights = w
		} else {
			log.WithError(err).Warn("Ignoring LANE_WEIGHTS")
		}
	}
	if v := os.Getenv("OVERRIDE_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.OverrideEvery = n
		}
	}
	if v := os.Getenv("OVERRIDE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.OverrideMs = n
		}
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"api_url":        cfg.APIURL,
		"interval":       cfg.Interval,
		"weights":        cfg.Weights,
		"override_every": cfg.OverrideEvery,
	}).Info("Starting traffic generator")

	seed := uint64(time.Now().UnixNano())
	src := rand.NewPCG(seed, seed>>1)
	st := run(ctx, cfg, rand.New(src), arrivals(cfg.Interval, rand.NewPCG(seed+1, seed)))
	log.WithFields(log.Fields{
		"created":   st.Created,
		"blocked":   st.Blocked,
		"throttled": st.Throttled,
		"failed":    st.Failed,
		"overrides": st.Overrides,
	}).Info("Traffic generator stopped")
}
