package grid_world

import (
	"errors"
	"fmt"
)

// Game modes, each selecting a preset EpisodeConfig.
const (
	MODE_I_AM_RL_AGENT = "i_am_rl_agent"
	MODE_AUTOMATIC_RL  = "automatic_rl"
)

// Preset defaults.
const (
	GAME_WIDTH  = 5
	GAME_HEIGHT = 4

	LAVA_REWARD       = -10.0
	GREEN_REWARD      = 10.0
	FED_REWARD        = 100.0
	TICK_PENALTY      = -0.1
	PREDATOR_MOVE_P   = 0.3
	RESOURCE_MOVE_P   = 0.1
	PRESET_LAVA_COUNT = 5
	PRESET_GREEN      = 2
)

var (
	ErrInvalidConfig = errors.New("invalid episode config")
	ErrUnknownMode   = errors.New("unknown game mode")
)

// EpisodeConfig is the immutable description of an episode family. Random counts or flags
// select sampled values, which Resolve turns into a concrete ResolvedEpisode.
//
// A positive *Random count takes precedence over the matching explicit cell list, and a random
// entity flag takes precedence over its explicit start. The predator and resource exist only
// when random or given a start.
//
// Fields decode from yaml by their lowercased names, which also matches the camelCase keys of a
// config file once viper has folded them.
type EpisodeConfig struct {
	Mode   string
	Width  int
	Height int

	AgentRandom bool
	AgentStart  *Position

	PredatorRandom    bool
	PredatorStart     *Position
	PredatorMoveProb  float64
	PredatorFedReward float64

	ResourceRandom   bool
	ResourceStart    *Position
	ResourceMoveProb float64

	LavaRandom     int
	LavaCells      []Position
	LavaIsTerminal bool
	LavaReward     float64

	GreenRandom     int
	GreenCells      []Position
	GreenIsTerminal bool
	GreenReward     float64

	TerminalRandom int
	TerminalCells  []Position

	// TickPenalty is added to every step's reward; usually zero or negative.
	TickPenalty float64
}

// HasPredator reports whether episodes of this config contain a predator.
func (cfg *EpisodeConfig) HasPredator() bool {
	return cfg.PredatorRandom || cfg.PredatorStart != nil
}

// HasResource reports whether episodes of this config contain a resource.
func (cfg *EpisodeConfig) HasResource() bool {
	return cfg.ResourceRandom || cfg.ResourceStart != nil
}

// NumActions is 6 when a resource exists (take, put/feed), else 4.
func (cfg *EpisodeConfig) NumActions() int {
	if cfg.HasResource() {
		return NUM_ACTIONS_RESOURCES
	}
	return NUM_ACTIONS_BASIC
}

// Validate checks the static shape of the config. Capacity problems with random counts are
// only detectable during resolution and are reported by Resolve.
func (cfg *EpisodeConfig) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: board size %dx%d", ErrInvalidConfig, cfg.Width, cfg.Height)
	}
	if !cfg.AgentRandom && cfg.AgentStart == nil {
		return fmt.Errorf("%w: agent needs a start position or agentRandom", ErrInvalidConfig)
	}
	for name, p := range map[string]float64{
		"predatorMoveProb": cfg.PredatorMoveProb,
		"resourceMoveProb": cfg.ResourceMoveProb,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: %s=%.3f not in [0,1]", ErrInvalidConfig, name, p)
		}
	}
	for name, n := range map[string]int{
		"lavaRandom":     cfg.LavaRandom,
		"greenRandom":    cfg.GreenRandom,
		"terminalRandom": cfg.TerminalRandom,
	} {
		if n < 0 {
			return fmt.Errorf("%w: %s=%d is negative", ErrInvalidConfig, name, n)
		}
	}

	explicit := map[string][]Position{
		"lavaCells":     cfg.LavaCells,
		"greenCells":    cfg.GreenCells,
		"terminalCells": cfg.TerminalCells,
	}
	for _, start := range []struct {
		name string
		pos  *Position
	}{
		{"agentStart", cfg.AgentStart},
		{"predatorStart", cfg.PredatorStart},
		{"resourceStart", cfg.ResourceStart},
	} {
		if start.pos != nil {
			explicit[start.name] = []Position{*start.pos}
		}
	}
	for name, cells := range explicit {
		for _, pos := range cells {
			if !inBounds(pos, cfg.Width, cfg.Height) {
				return fmt.Errorf("%w: %s %v outside %dx%d board", ErrInvalidConfig, name, pos, cfg.Width, cfg.Height)
			}
		}
	}
	return nil
}

// Preset returns the config of one of the two game modes.
func Preset(mode string) (EpisodeConfig, error) {
	switch mode {
	case MODE_I_AM_RL_AGENT:
		return EpisodeConfig{
			Mode:              mode,
			Width:             GAME_WIDTH,
			Height:            GAME_HEIGHT,
			AgentRandom:       true,
			PredatorRandom:    true,
			PredatorMoveProb:  PREDATOR_MOVE_P,
			PredatorFedReward: FED_REWARD,
			ResourceRandom:    true,
			ResourceMoveProb:  RESOURCE_MOVE_P,
			LavaRandom:        PRESET_LAVA_COUNT,
			LavaIsTerminal:    true,
			LavaReward:        LAVA_REWARD,
			GreenIsTerminal:   true,
			GreenReward:       GREEN_REWARD,
			TickPenalty:       TICK_PENALTY,
		}, nil
	case MODE_AUTOMATIC_RL:
		return EpisodeConfig{
			Mode:              mode,
			Width:             GAME_WIDTH,
			Height:            GAME_HEIGHT,
			AgentRandom:       true,
			PredatorFedReward: FED_REWARD,
			LavaRandom:        PRESET_LAVA_COUNT,
			LavaIsTerminal:    true,
			LavaReward:        LAVA_REWARD,
			GreenRandom:       PRESET_GREEN,
			GreenIsTerminal:   true,
			GreenReward:       GREEN_REWARD,
		}, nil
	}
	return EpisodeConfig{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}
