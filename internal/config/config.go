// Package config loads and validates engine configuration from file and
// environment. All parameters are checked before any search runs; invalid
// values are rejected with the offending parameter name.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/j-berg/metabonet/internal/search"
	"github.com/j-berg/metabonet/internal/selector"
)

// Error reports an invalid configuration parameter.
type Error struct {
	Param  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %s", e.Param, e.Reason)
}

// Target module count bounds enforced at load time.
const (
	MinTargetModules = 5
	MaxTargetModules = 25
)

// Config holds all application configuration.
type Config struct {
	Search    SearchConfig    `mapstructure:"search"`
	Selection SelectionConfig `mapstructure:"selection"`
	Store     StoreConfig     `mapstructure:"store"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// SearchConfig parameterizes the module search engine.
type SearchConfig struct {
	TargetModules   int                `mapstructure:"target_modules"`
	Overlaps        []float64          `mapstructure:"overlaps"`
	MaxDepth        int                `mapstructure:"max_depth"`
	SizeAdjust      bool               `mapstructure:"size_adjust"`
	RegionalScoring bool               `mapstructure:"regional_scoring"`
	Restarts        int                `mapstructure:"restarts"`
	Seed            int64              `mapstructure:"seed"`
	IterationBudget int                `mapstructure:"iteration_budget"`
	Workers         int                `mapstructure:"workers"`
	StudyWeights    map[string]float64 `mapstructure:"study_weights"`
}

// SelectionConfig parameterizes the cluster selector.
type SelectionConfig struct {
	MinReactions int     `mapstructure:"min_reactions"`
	MaxReactions int     `mapstructure:"max_reactions"`
	MinCoverage  float64 `mapstructure:"min_coverage"`
	Significance float64 `mapstructure:"significance"`
	ContextP     float64 `mapstructure:"context_p"`
}

// StoreConfig configures optional Neo4j persistence of results.
type StoreConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate rejects invalid parameter values before any computation.
func (c *Config) Validate() error {
	s := c.Search
	if s.TargetModules < MinTargetModules || s.TargetModules > MaxTargetModules {
		return &Error{"search.target_modules", fmt.Sprintf("%d outside [%d, %d]", s.TargetModules, MinTargetModules, MaxTargetModules)}
	}
	if len(s.Overlaps) == 0 {
		return &Error{"search.overlaps", "at least one overlap threshold required"}
	}
	for _, theta := range s.Overlaps {
		if theta <= 0 || theta > 1 {
			return &Error{"search.overlaps", fmt.Sprintf("threshold %v outside (0, 1]", theta)}
		}
	}
	if s.MaxDepth < 1 {
		return &Error{"search.max_depth", fmt.Sprintf("%d must be at least 1", s.MaxDepth)}
	}
	if s.Restarts < 0 {
		return &Error{"search.restarts", fmt.Sprintf("%d must not be negative", s.Restarts)}
	}
	if s.IterationBudget < 0 {
		return &Error{"search.iteration_budget", fmt.Sprintf("%d must not be negative", s.IterationBudget)}
	}
	for study, w := range s.StudyWeights {
		if w <= 0 {
			return &Error{"search.study_weights", fmt.Sprintf("weight %v for study %q must be positive", w, study)}
		}
	}

	sel := c.Selection
	if sel.MinReactions < 0 {
		return &Error{"selection.min_reactions", fmt.Sprintf("%d must not be negative", sel.MinReactions)}
	}
	if sel.MaxReactions < sel.MinReactions {
		return &Error{"selection.max_reactions", fmt.Sprintf("bounds [%d, %d] inverted", sel.MinReactions, sel.MaxReactions)}
	}
	if sel.MinCoverage < 0 || sel.MinCoverage > 1 {
		return &Error{"selection.min_coverage", fmt.Sprintf("%v outside [0, 1]", sel.MinCoverage)}
	}
	if sel.Significance <= 0 || sel.Significance > 1 {
		return &Error{"selection.significance", fmt.Sprintf("%v outside (0, 1]", sel.Significance)}
	}
	if sel.ContextP <= 0 || sel.ContextP > 1 {
		return &Error{"selection.context_p", fmt.Sprintf("%v outside (0, 1]", sel.ContextP)}
	}

	if c.Store.Enabled && c.Store.URI == "" {
		return &Error{"store.uri", "required when store is enabled"}
	}
	return nil
}

// SearchOptions converts the search section into the engine's config.
func (c *Config) SearchOptions() search.Config {
	s := c.Search
	return search.Config{
		TargetModules:   s.TargetModules,
		Overlaps:        s.Overlaps,
		MaxDepth:        s.MaxDepth,
		SizeAdjust:      s.SizeAdjust,
		RegionalScoring: s.RegionalScoring,
		Restarts:        s.Restarts,
		Seed:            s.Seed,
		IterationBudget: s.IterationBudget,
		Workers:         s.Workers,
	}
}

// SelectionOptions converts the selection section into the selector's
// config, carrying the search's size-adjustment and regional-scoring
// settings so re-scored modules stay comparable.
func (c *Config) SelectionOptions() selector.Config {
	sel := c.Selection
	return selector.Config{
		MinReactions:    sel.MinReactions,
		MaxReactions:    sel.MaxReactions,
		MinCoverage:     sel.MinCoverage,
		Significance:    sel.Significance,
		ContextP:        sel.ContextP,
		SizeAdjust:      c.Search.SizeAdjust,
		MaxDepth:        c.Search.MaxDepth,
		RegionalScoring: c.Search.RegionalScoring,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.target_modules", 10)
	v.SetDefault("search.overlaps", []float64{0.25, 0.50, 0.75})
	v.SetDefault("search.max_depth", 2)
	v.SetDefault("search.size_adjust", true)
	v.SetDefault("search.regional_scoring", true)
	v.SetDefault("search.restarts", 3)
	v.SetDefault("search.seed", 42)
	v.SetDefault("search.iteration_budget", 10000)
	v.SetDefault("search.workers", 0)
	v.SetDefault("selection.min_reactions", 1)
	v.SetDefault("selection.max_reactions", 3)
	v.SetDefault("selection.min_coverage", 0.5)
	v.SetDefault("selection.significance", 0.05)
	v.SetDefault("selection.context_p", 0.25)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "metabonet-sweep")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from file and environment. An empty path loads
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("METABONET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
