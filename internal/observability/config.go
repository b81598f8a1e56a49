package observability

import (
	"strings"

	"github.com/smallbiznis/launchpad/internal/config"
)

// Config is the telemetry view of the application config, fanned out to the
// logger, tracer and meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "launchpad"
	}
	t := cfg.Telemetry
	protocol := "grpc"
	if strings.HasPrefix(strings.TrimSpace(t.OtelProtocol), "http") {
		protocol = "http"
	}
	return Config{
		ServiceName:   name,
		Environment:   strings.TrimSpace(cfg.Environment),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      strings.TrimSpace(t.LogLevel),
		LogFormat:     strings.TrimSpace(t.LogFormat),
		OtelEnabled:   t.OtelEnabled,
		OtelEndpoint:  strings.TrimSpace(t.OtelEndpoint),
		OtelProtocol:  protocol,
		SamplingRatio: clampRatio(t.SamplingRatio),
	}
}

// Debug is on for debug logging and for local environments. It also puts gin
// into debug mode.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
