package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/RCK777-BALL/workpro-pmscheduler/internal/config"
)

// captureLogOutput calls logConfigWarnings with the given config and returns
// the captured log output as a string.
func captureLogOutput(cfg *config.Config) string {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	logConfigWarnings(cfg)
	return buf.String()
}

func TestLogConfigWarnings_NoRedis(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "",
		SweepEnabled:            true,
		MetricsEnabled:          true,
		LeaderEnabled:           true,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P0]: REDIS_ADDR not set") {
		t.Error("expected no-redis P0 warning, got:", output)
	}
	if strings.Contains(output, "WARNING [P1]") {
		t.Error("did not expect P1 warnings, got:", output)
	}
}

func TestLogConfigWarnings_CleanConfig(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "localhost:6379",
		SweepEnabled:            true,
		MetricsEnabled:          true,
		LeaderEnabled:           true,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if strings.Contains(output, "WARNING") {
		t.Error("did not expect any warnings, got:", output)
	}
	if strings.Contains(output, "INFO") {
		t.Error("did not expect any INFO messages, got:", output)
	}
}

func TestLogConfigWarnings_SweepDisabled(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "localhost:6379",
		SweepEnabled:            false,
		MetricsEnabled:          true,
		LeaderEnabled:           true,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: SWEEP_ENABLED=false") {
		t.Error("expected sweep P1 warning, got:", output)
	}
	if strings.Contains(output, "WARNING [P0]") {
		t.Error("did not expect P0 warnings, got:", output)
	}
}

func TestLogConfigWarnings_MetricsDisabled(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "localhost:6379",
		SweepEnabled:            true,
		MetricsEnabled:          false,
		LeaderEnabled:           true,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "WARNING [P1]: METRICS_ENABLED=false") {
		t.Error("expected metrics P1 warning, got:", output)
	}
}

func TestLogConfigWarnings_SingleInstance(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "localhost:6379",
		SweepEnabled:            true,
		MetricsEnabled:          true,
		LeaderEnabled:           false,
		CircuitBreakerThreshold: 5,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "INFO: LEADER_ENABLED=false") {
		t.Error("expected single-instance INFO, got:", output)
	}
	if strings.Contains(output, "WARNING") {
		t.Error("did not expect warnings, got:", output)
	}
}

func TestLogConfigWarnings_BreakerDisabled(t *testing.T) {
	cfg := &config.Config{
		RedisAddr:               "localhost:6379",
		SweepEnabled:            true,
		MetricsEnabled:          true,
		LeaderEnabled:           true,
		CircuitBreakerThreshold: 0,
	}
	output := captureLogOutput(cfg)

	if !strings.Contains(output, "INFO: CIRCUIT_BREAKER_THRESHOLD=0") {
		t.Error("expected breaker INFO, got:", output)
	}
}

func TestLogConfigWarnings_AllWarnings(t *testing.T) {
	// Worst case: no redis, no sweep, no metrics, no leader, no breaker
	cfg := &config.Config{}
	output := captureLogOutput(cfg)

	expected := []string{
		"WARNING [P0]: REDIS_ADDR not set",
		"WARNING [P1]: SWEEP_ENABLED=false",
		"WARNING [P1]: METRICS_ENABLED=false",
		"INFO: LEADER_ENABLED=false",
		"INFO: CIRCUIT_BREAKER_THRESHOLD=0",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}
