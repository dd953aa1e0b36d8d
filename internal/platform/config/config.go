package config

import (
	"bytes"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads .env files into the environment. With no paths, ".env" is
// used. A missing file is an error callers may ignore.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses the variable named by key with time.ParseDuration,
// returning fallback if it is unset or invalid.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}

// Run describes one simulation. Durations use Go syntax ("50s", "40ms");
// Bandwidth is an SI rate ("5Mbps").
type Run struct {
	SimID          int           `yaml:"sim_id"`
	SimTime        time.Duration `yaml:"sim_time"`
	Clients        int           `yaml:"clients"`
	Bandwidth      string        `yaml:"bandwidth"`
	BandwidthTrace string        `yaml:"bandwidth_trace"`
	Delay          time.Duration `yaml:"delay"`
	MaxPending     int           `yaml:"max_pending"`

	Catalog        string `yaml:"catalog"`
	Quality        string `yaml:"quality"`
	ViewpointModel string `yaml:"vp_model"`
	ViewpointTrace string `yaml:"vp_trace"`
	Seed           int64  `yaml:"seed"`

	Algorithm   string        `yaml:"algorithm"`
	RequestMode string        `yaml:"request_mode"`
	Forecast    string        `yaml:"forecast"`
	BufferHigh  time.Duration `yaml:"buffer_high"`

	Out string `yaml:"out"`
}

// DefaultRun returns the defaults of a run: one client on a 5 Mbit/s
// bottleneck for 50 s, MPC over group requests with the free model.
func DefaultRun() Run {
	return Run{
		SimTime:        50 * time.Second,
		Clients:        1,
		Bandwidth:      "5Mbps",
		Delay:          50 * time.Millisecond,
		Catalog:        "dataset_size.csv",
		ViewpointModel: "free",
		ViewpointTrace: "viewpoint_transition.csv",
		Algorithm:      "mpc",
		RequestMode:    "group",
		Forecast:       "robust",
		BufferHigh:     5 * time.Second,
		Out:            "logs",
	}
}

// LoadFile reads a YAML run description over DefaultRun. With strict set,
// unknown keys are an error.
func LoadFile(path string, strict bool) (Run, error) {
	run := DefaultRun()
	b, err := os.ReadFile(path)
	if err != nil {
		return run, errors.Wrapf(err, "read run file %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(strict)
	if err := dec.Decode(&run); err != nil {
		return run, errors.Wrapf(err, "parse run file %s", path)
	}
	return run, nil
}
