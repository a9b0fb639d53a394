package grid_world

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrInsufficientCells is returned when a config asks for more random cells than the board can hold.
var ErrInsufficientCells = errors.New("not enough free cells")

// ResolvedEpisode is the concrete outcome of resolving an EpisodeConfig: every random field
// has been sampled. Terminal includes the lava/green cells flagged terminal.
type ResolvedEpisode struct {
	Width, Height int
	Agent         Position
	Predator      *Position
	Resource      *Position
	Lava          []Position
	Green         []Position
	Terminal      []Position
}

// Resolve samples every random field of cfg in dependency order, so that no sampled value
// lands where it is forbidden:
//  1. lava, from all cells
//  2. green, excluding lava
//  3. terminal, excluding lava/green already terminal, then topped up with them
//  4. agent, excluding terminal cells
//  5. predator, excluding lava
//  6. resource, excluding lava and terminal cells
//
// Resolve has no side effects beyond drawing from rng.
func Resolve(cfg EpisodeConfig, rng *rand.Rand) (ep ResolvedEpisode, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	sampler := newCellSampler(cfg.Width, cfg.Height, rng)
	ep.Width, ep.Height = cfg.Width, cfg.Height

	ep.Lava = clonePositions(cfg.LavaCells)
	if cfg.LavaRandom > 0 {
		if ep.Lava, err = sampler.sample("lava", cfg.LavaRandom, nil); err != nil {
			return
		}
	}

	ep.Green = clonePositions(cfg.GreenCells)
	if cfg.GreenRandom > 0 {
		if ep.Green, err = sampler.sample("green", cfg.GreenRandom, newPositionSet(ep.Lava)); err != nil {
			return
		}
	}

	ep.Terminal = clonePositions(cfg.TerminalCells)
	if cfg.TerminalRandom > 0 {
		numToGenerate := cfg.TerminalRandom
		exclude := newPositionSet()
		if cfg.LavaIsTerminal {
			numToGenerate -= len(ep.Lava)
			exclude = newPositionSet(ep.Lava)
		}
		if cfg.GreenIsTerminal {
			numToGenerate -= len(ep.Green)
			for _, pos := range ep.Green {
				exclude[pos] = struct{}{}
			}
		}
		ep.Terminal = nil
		if numToGenerate > 0 {
			if ep.Terminal, err = sampler.sample("terminal", numToGenerate, exclude); err != nil {
				return
			}
		}
	}
	if cfg.LavaIsTerminal {
		ep.Terminal = append(ep.Terminal, ep.Lava...)
	}
	if cfg.GreenIsTerminal {
		ep.Terminal = append(ep.Terminal, ep.Green...)
	}
	ep.Terminal = dedupe(ep.Terminal)

	lava := newPositionSet(ep.Lava)
	terminal := newPositionSet(ep.Terminal)

	if cfg.AgentRandom {
		var agent []Position
		if agent, err = sampler.sample("agent", 1, terminal); err != nil {
			return
		}
		ep.Agent = agent[0]
	} else {
		ep.Agent = *cfg.AgentStart
	}

	if ep.Predator, err = resolveStart(sampler, "predator", cfg.PredatorRandom, cfg.PredatorStart, lava, lava); err != nil {
		return
	}
	if ep.Resource, err = resolveStart(
		sampler, "resource", cfg.ResourceRandom, cfg.ResourceStart, lava, newPositionSet(ep.Lava, ep.Terminal),
	); err != nil {
		return
	}
	return
}

// resolveStart resolves an optional wandering entity. An explicit start inside lava is rejected,
// since wandering entities must never stand in lava.
func resolveStart(
	sampler *cellSampler,
	name string,
	random bool,
	start *Position,
	lava positionSet,
	exclude positionSet,
) (*Position, error) {
	if random {
		pos, err := sampler.sample(name, 1, exclude)
		if err != nil {
			return nil, err
		}
		return &pos[0], nil
	}
	if start == nil {
		return nil, nil
	}
	if lava.has(*start) {
		return nil, fmt.Errorf("%w: %s start %v is a lava cell", ErrInvalidConfig, name, *start)
	}
	pos := *start
	return &pos, nil
}

// cellSampler draws distinct board positions uniformly without replacement.
type cellSampler struct {
	cells []Position
	rng   *rand.Rand
}

func newCellSampler(width, height int, rng *rand.Rand) *cellSampler {
	cells := make([]Position, 0, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cells = append(cells, Position{X: x, Y: y})
		}
	}
	return &cellSampler{cells: cells, rng: rng}
}

// sample returns n distinct positions not in exclude, failing up front when fewer are free.
func (cs *cellSampler) sample(name string, n int, exclude positionSet) ([]Position, error) {
	free := make([]Position, 0, len(cs.cells))
	for _, pos := range cs.cells {
		if !exclude.has(pos) {
			free = append(free, pos)
		}
	}
	if len(free) < n {
		return nil, fmt.Errorf("%w: %s wants %d cells, %d available", ErrInsufficientCells, name, n, len(free))
	}
	cs.rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	return free[:n:n], nil
}

func clonePositions(positions []Position) []Position {
	if len(positions) == 0 {
		return nil
	}
	cloned := make([]Position, len(positions))
	copy(cloned, positions)
	return cloned
}

func dedupe(positions []Position) []Position {
	seen := positionSet{}
	out := positions[:0]
	for _, pos := range positions {
		if seen.has(pos) {
			continue
		}
		seen[pos] = struct{}{}
		out = append(out, pos)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
