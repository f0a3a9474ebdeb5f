// Package config loads the service's environment configuration: store
// connection details, control-surface settings, and the shard/batch/rate
// caps spec.md §5 and §6 specify. Loaded the same way the teacher's CLI
// loads its Config: fuda.SetDefaults for struct-tag defaults, fuda.LoadEnv
// for environment overrides.
package config

import (
	"fmt"

	"github.com/arloliu/fuda"
)

// Config is the full set of environment-configurable knobs for incidentgen.
type Config struct {
	// StoreURI is the Postgres DSN the document store connects to.
	StoreURI string `yaml:"storeUri" env:"INCIDENTGEN_STORE_URI" default:"postgres://localhost:5432/incidentforge" validate:"required"`

	// IncidentsTable and RepairsTable name the two document tables. Named
	// for parity with spec.md's "incident collection"/"repair collection"
	// settings even though this store is relational, not a Mongo-style
	// database-of-collections.
	IncidentsTable string `yaml:"incidentsTable" env:"INCIDENTGEN_INCIDENTS_TABLE" default:"incidents"`
	RepairsTable   string `yaml:"repairsTable" env:"INCIDENTGEN_REPAIRS_TABLE" default:"repairs"`

	// ControlPort is the HTTP control surface's listen port.
	ControlPort int `yaml:"controlPort" env:"INCIDENTGEN_CONTROL_PORT" default:"5050" validate:"gt=0,lt=65536"`

	// GRPCHealthPort is the secondary gRPC health-check listen port.
	GRPCHealthPort int `yaml:"grpcHealthPort" env:"INCIDENTGEN_GRPC_HEALTH_PORT" default:"5051" validate:"gt=0,lt=65536"`

	// AllowedOrigin is the CORS origin the control surface accepts. "*"
	// disables the restriction.
	AllowedOrigin string `yaml:"allowedOrigin" env:"INCIDENTGEN_ALLOWED_ORIGIN" default:"*"`

	// MovingAverageWindowSec is the default window W for the producer
	// pool's moving-average throughput calculation.
	MovingAverageWindowSec int `yaml:"movingAverageWindowSec" env:"INCIDENTGEN_MA_WINDOW_SEC" default:"10" validate:"gt=0"`

	// CatalogPath is the JSON catalog file the location model loads at
	// startup.
	CatalogPath string `yaml:"catalogPath" env:"INCIDENTGEN_CATALOG_PATH" default:"catalog.json"`

	// MaxShards, MaxBatch, and MaxRate are the resource caps spec.md §5
	// requires: K <= MaxShards, B <= MaxBatch, R <= MaxRate.
	MaxShards int `yaml:"maxShards" env:"INCIDENTGEN_MAX_SHARDS" default:"128" validate:"gt=0"`
	MaxBatch  int `yaml:"maxBatch" env:"INCIDENTGEN_MAX_BATCH" default:"50000" validate:"gt=0"`
	MaxRate   int `yaml:"maxRate" env:"INCIDENTGEN_MAX_RATE" default:"1000000" validate:"gt=0"`

	// RepairTTLDays, when positive, enables a time-indexed pruning setting
	// on the repairs table. Zero disables pruning.
	RepairTTLDays int `yaml:"repairTtlDays" env:"INCIDENTGEN_REPAIR_TTL_DAYS" default:"0" validate:"gte=0"`

	// NATSURL is the optional JetStream URL for the event-bus fan-out.
	// Empty disables the bus entirely.
	NATSURL string `yaml:"natsUrl" env:"INCIDENTGEN_NATS_URL"`
}

// Load builds a Config from struct-tag defaults overridden by environment
// variables. There is no config file in this service: every knob is either
// a default or an environment override, matching the teacher CLI's
// newConfig/applyEnvOverrides split but collapsed into one call since there
// are no CLI flags here.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := fuda.SetDefaults(cfg); err != nil {
		return nil, fmt.Errorf("config: set defaults: %w", err)
	}
	if err := fuda.LoadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	return cfg, nil
}
