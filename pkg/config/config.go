package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/catalogsync/pkg/batcher"
	"github.com/cuemby/catalogsync/pkg/bgworker"
	"github.com/cuemby/catalogsync/pkg/engine"
	"github.com/cuemby/catalogsync/pkg/hybrid"
	"github.com/cuemby/catalogsync/pkg/rategovernor"
	"github.com/cuemby/catalogsync/pkg/scheduler"
	"github.com/cuemby/catalogsync/pkg/types"
	"gopkg.in/yaml.v3"
)

// StoreSpec is one store entry in the YAML file. CredentialsEnv names
// an environment variable holding "login:password"; credential storage
// itself is out of scope here, so the file only ever carries a
// reference to where the real secret lives.
type StoreSpec struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	VenueID        string `yaml:"venueId"`
	BaseURL        string `yaml:"baseUrl,omitempty"`
	CredentialsEnv string `yaml:"credentialsEnv"`
	Enabled        bool   `yaml:"enabled"`
}

// GlobalSpec carries every process-wide tunable, all optional (zero
// value means "use the package default").
type GlobalSpec struct {
	SoTBaseURL                string `yaml:"sotBaseUrl"`
	DefaultMarketplaceBaseURL string `yaml:"defaultMarketplaceBaseUrl"`
	SKUField                  string `yaml:"skuField"`
	StateDir                  string `yaml:"stateDir"`

	SyncIntervalMinutes int `yaml:"syncIntervalMinutes"`

	FirstSyncBatchSize int `yaml:"firstSyncBatchSize"`
	FirstSyncDelaySecs int `yaml:"firstSyncDelaySeconds"`
	DeltaBatchSize     int `yaml:"deltaBatchSize"`
	DeltaDelaySecs     int `yaml:"deltaDelaySeconds"`
	PhasePauseSecs     int `yaml:"phasePauseSeconds"`

	RateGovernor *RateGovernorSpec `yaml:"rateGovernor,omitempty"`
	Batcher      *BatcherSpec      `yaml:"adaptiveBatcher,omitempty"`

	BackgroundDailyLimit     int `yaml:"backgroundDailyLimit"`
	BackgroundStartDelayMins int `yaml:"backgroundStartDelayMinutes"`
	BackgroundIntervalHours  int `yaml:"backgroundIntervalHours"`

	PriorityLimit   int           `yaml:"priorityLimit"`
	PriorityWeights *PrioritySpec `yaml:"priorityWeights,omitempty"`
}

// RateGovernorSpec overrides rategovernor.DefaultConfig fields.
type RateGovernorSpec struct {
	MinIntervalMillis int   `yaml:"minIntervalMillis"`
	LearningEnabled   *bool `yaml:"learningEnabled,omitempty"`
	LearnedCapMinutes int   `yaml:"learnedCapMinutes"`
}

// BatcherSpec overrides batcher.DefaultConfig fields.
type BatcherSpec struct {
	MinBatchSize      int     `yaml:"minBatchSize"`
	MaxBatchSize      int     `yaml:"maxBatchSize"`
	InitialBatchSize  int     `yaml:"initialBatchSize"`
	IncreaseThreshold int     `yaml:"increaseThreshold"`
	IncreaseRate      float64 `yaml:"increaseRate"`
	DecreaseRate      float64 `yaml:"decreaseRate"`
}

// PrioritySpec overrides priority.DefaultWeights fields.
type PrioritySpec struct {
	InStockWeight      int     `yaml:"inStockWeight"`
	HighStockWeight    int     `yaml:"highStockWeight"`
	HighStockThreshold int     `yaml:"highStockThreshold"`
	LowStockWeight     int     `yaml:"lowStockWeight"`
	LowStockThreshold  int     `yaml:"lowStockThreshold"`
	HighValueWeight    int     `yaml:"highValueWeight"`
	HighValueThreshold float64 `yaml:"highValueThreshold"`
}

// File is the root of the YAML configuration document.
type File struct {
	Stores []StoreSpec `yaml:"stores"`
	Global GlobalSpec  `yaml:"global"`
}

// Load reads and parses path. It does not resolve credentials or apply
// defaults; call ResolveStores and the As*Config helpers for that.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[int]bool, len(f.Stores))
	for _, s := range f.Stores {
		if s.ID == 0 {
			return fmt.Errorf("store %q: id is required and must be non-zero", s.Name)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate store id %d", s.ID)
		}
		seen[s.ID] = true
		if s.Enabled && s.CredentialsEnv == "" {
			return fmt.Errorf("store %d (%s): credentialsEnv is required for an enabled store", s.ID, s.Name)
		}
	}
	return nil
}

// ResolveStores turns the YAML store list into types.Store values,
// resolving each store's "login:password" credentials from its named
// environment variable. A disabled store with no credentials is
// resolved with empty Login/Password rather than erroring.
func (f *File) ResolveStores() ([]types.Store, error) {
	stores := make([]types.Store, 0, len(f.Stores))
	for _, s := range f.Stores {
		login, password, err := resolveCredentials(s.CredentialsEnv)
		if err != nil && s.Enabled {
			return nil, fmt.Errorf("store %d (%s): %w", s.ID, s.Name, err)
		}
		stores = append(stores, types.Store{
			ID:       s.ID,
			Name:     s.Name,
			VenueID:  s.VenueID,
			BaseURL:  s.BaseURL,
			Login:    login,
			Password: password,
			Enabled:  s.Enabled,
		})
	}
	return stores, nil
}

func resolveCredentials(envVar string) (login, password string, err error) {
	if envVar == "" {
		return "", "", nil
	}
	raw, ok := os.LookupEnv(envVar)
	if !ok || raw == "" {
		return "", "", fmt.Errorf("environment variable %s is not set", envVar)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			return raw[:i], raw[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("environment variable %s must be in login:password form", envVar)
}

// EngineConfig builds pkg/engine's Config from the file, layering
// overrides onto engine.DefaultConfig.
func (f *File) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	g := f.Global
	if g.SKUField != "" {
		cfg.SKUField = g.SKUField
	}
	if g.PhasePauseSecs > 0 {
		cfg.PhasePause = time.Duration(g.PhasePauseSecs) * time.Second
	}
	if g.FirstSyncBatchSize > 0 {
		cfg.FirstSync.BatchSize = g.FirstSyncBatchSize
	}
	if g.FirstSyncDelaySecs > 0 {
		cfg.FirstSync.Delay = time.Duration(g.FirstSyncDelaySecs) * time.Second
	}
	if g.DeltaBatchSize > 0 {
		cfg.Delta.BatchSize = g.DeltaBatchSize
	}
	if g.DeltaDelaySecs > 0 {
		cfg.Delta.Delay = time.Duration(g.DeltaDelaySecs) * time.Second
	}
	return cfg
}

// SchedulerConfig builds pkg/scheduler's Config from the file.
func (f *File) SchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if f.Global.SyncIntervalMinutes > 0 {
		cfg.SyncInterval = time.Duration(f.Global.SyncIntervalMinutes) * time.Minute
	}
	return cfg
}

// RateGovernorConfig builds pkg/rategovernor's Config from the file.
func (f *File) RateGovernorConfig() rategovernor.Config {
	cfg := rategovernor.DefaultConfig()
	spec := f.Global.RateGovernor
	if spec == nil {
		return cfg
	}
	if spec.MinIntervalMillis > 0 {
		cfg.MinInterval = time.Duration(spec.MinIntervalMillis) * time.Millisecond
	}
	if spec.LearningEnabled != nil {
		cfg.LearningEnabled = *spec.LearningEnabled
	}
	if spec.LearnedCapMinutes > 0 {
		cfg.LearnedCap = time.Duration(spec.LearnedCapMinutes) * time.Minute
	}
	return cfg
}

// BatcherConfig builds pkg/batcher's Config from the file.
func (f *File) BatcherConfig() batcher.Config {
	cfg := batcher.DefaultConfig()
	spec := f.Global.Batcher
	if spec == nil {
		return cfg
	}
	if spec.MinBatchSize > 0 {
		cfg.MinBatchSize = spec.MinBatchSize
	}
	if spec.MaxBatchSize > 0 {
		cfg.MaxBatchSize = spec.MaxBatchSize
	}
	if spec.InitialBatchSize > 0 {
		cfg.InitialBatchSize = spec.InitialBatchSize
	}
	if spec.IncreaseThreshold > 0 {
		cfg.IncreaseThreshold = spec.IncreaseThreshold
	}
	if spec.IncreaseRate > 0 {
		cfg.IncreaseRate = spec.IncreaseRate
	}
	if spec.DecreaseRate > 0 {
		cfg.DecreaseRate = spec.DecreaseRate
	}
	return cfg
}

// BackgroundWorkerConfig builds pkg/bgworker's Config from the file.
func (f *File) BackgroundWorkerConfig() bgworker.Config {
	cfg := bgworker.DefaultConfig()
	g := f.Global
	if g.BackgroundDailyLimit > 0 {
		cfg.DailyLimit = g.BackgroundDailyLimit
	}
	if g.BackgroundStartDelayMins > 0 {
		cfg.StartDelay = time.Duration(g.BackgroundStartDelayMins) * time.Minute
	}
	if g.BackgroundIntervalHours > 0 {
		cfg.BatchInterval = time.Duration(g.BackgroundIntervalHours) * time.Hour
	}
	if g.SKUField != "" {
		cfg.SKUField = g.SKUField
	}
	return cfg
}

// HybridConfig builds pkg/hybrid's Config from the file.
func (f *File) HybridConfig() hybrid.Config {
	cfg := hybrid.DefaultConfig()
	g := f.Global
	if g.PriorityLimit > 0 {
		cfg.PriorityLimit = g.PriorityLimit
	}
	if g.PriorityWeights != nil {
		w := cfg.PriorityWeights
		spec := g.PriorityWeights
		if spec.InStockWeight != 0 {
			w.InStockWeight = spec.InStockWeight
		}
		if spec.HighStockWeight != 0 {
			w.HighStockWeight = spec.HighStockWeight
		}
		if spec.HighStockThreshold != 0 {
			w.HighStockThreshold = spec.HighStockThreshold
		}
		if spec.LowStockWeight != 0 {
			w.LowStockWeight = spec.LowStockWeight
		}
		if spec.LowStockThreshold != 0 {
			w.LowStockThreshold = spec.LowStockThreshold
		}
		if spec.HighValueWeight != 0 {
			w.HighValueWeight = spec.HighValueWeight
		}
		if spec.HighValueThreshold != 0 {
			w.HighValueThreshold = spec.HighValueThreshold
		}
		cfg.PriorityWeights = w
	}
	return cfg
}

// StateDir returns the configured state directory, defaulting to "state".
func (f *File) StateDir() string {
	if f.Global.StateDir != "" {
		return f.Global.StateDir
	}
	return "state"
}

// DefaultMarketplaceBaseURL returns the configured global default,
// used for stores whose StoreSpec does not override BaseURL.
func (f *File) DefaultMarketplaceBaseURL() string {
	return f.Global.DefaultMarketplaceBaseURL
}

// SoTBaseURL returns the single configured source-of-truth endpoint,
// shared by every store.
func (f *File) SoTBaseURL() string {
	return f.Global.SoTBaseURL
}
