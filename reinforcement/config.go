package reinforcement

import (
	"context"
	"fmt"
	"time"

	"mdpviz/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Hyperparameter keys and their defaults.
const (
	ETA            = "eta"
	GAMMA          = "gamma"
	EPSILON        = "epsilon"
	EPISODES       = "episodes"
	MAX_STEPS      = "maxSteps"
	STEPS_PER_TICK = "stepsPerTick"
	SEED           = "seed"

	DEFAULT_ETA            = 0.1
	DEFAULT_GAMMA          = 0.9
	DEFAULT_EPSILON        = 0.1
	DEFAULT_EPISODES       = 1000
	DEFAULT_MAX_STEPS      = 200
	DEFAULT_STEPS_PER_TICK = 1
)

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the learning hyperparameters and the game to learn on. It is decoded
// with yaml.v3 from the def section after viper has folded the keys to lowercase, hence the
// lowercase tags.
type TrainingConfig struct {
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// Algorithm names the learner; only qlearning exists.
	Algorithm map[string]string `yaml:"algorithm"`
	// TrainingDeadline bounds headless training, e.g. {duration: 30s}.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
	// Mode selects a preset episode config; see grid_world.Preset.
	Mode string `yaml:"mode"`
	// Episode overrides the preset entirely when present.
	Episode *grid_world.EpisodeConfig `yaml:"episode"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	if val, ok := cfg.lookupHyperParam(param); ok {
		return val
	}
	return defaultVal
}

func (cfg *TrainingConfig) lookupHyperParam(param string) (float64, bool) {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val, true
		}
	}
	return 0, false
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// EpisodeConfig returns the explicit episode if one was given, else the preset of Mode.
// An empty Mode selects the automatic learning game.
func (cfg *TrainingConfig) EpisodeConfig() (grid_world.EpisodeConfig, error) {
	if cfg.Episode != nil {
		return *cfg.Episode, nil
	}
	mode := cfg.Mode
	if mode == "" {
		mode = grid_world.MODE_AUTOMATIC_RL
	}
	return grid_world.Preset(mode)
}

// Seed returns the configured rng seed, zero included, or a time-based one when unset.
func (cfg *TrainingConfig) Seed() int64 {
	if seed, ok := cfg.lookupHyperParam(SEED); ok {
		return int64(seed)
	}
	return time.Now().UnixNano()
}

// FromYaml reads a training config wrapped in a kind/def envelope.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, fmt.Errorf("decode %s def: %w", outerConfig.Kind, err)
	}

	return innerConfig, nil
}
