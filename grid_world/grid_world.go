// grid_world implements a small grid game with an agent, a wandering predator and a wandering
// resource, exposing the step/reset interface of a Markov decision process. The state seen by a
// learner is only the agent's cell, encoded as y*width+x.
package grid_world

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	ErrInvalidAction = errors.New("invalid action")
	ErrInvalidState  = errors.New("invalid state")
	ErrNoPredator    = errors.New("no predator on the board")
	ErrNoResource    = errors.New("no resource on the board")
)

// GridWorld owns the board and every entity. It is not safe for concurrent use; callers
// serialize access, typically from a single driving loop.
type GridWorld struct {
	config  EpisodeConfig
	episode ResolvedEpisode
	rng     *rand.Rand

	board    *Board
	lava     positionSet
	agent    *Agent
	predator *Predator
	resource *Resource
	nActions int

	done          bool
	lastAction    Action
	hasLastAction bool
	lastReward    float64
	fullReward    float64
}

// New resolves cfg and builds a world ready for its first episode. A nil rng is replaced by a
// time-seeded source; pass a seeded one for reproducible runs.
func New(cfg EpisodeConfig, rng *rand.Rand) (*GridWorld, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ep, err := Resolve(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	gw := &GridWorld{
		config: cfg,
		rng:    rng,
	}
	gw.install(ep)
	return gw, nil
}

// install replaces the resolved episode and rebuilds the entities from it.
func (gw *GridWorld) install(ep ResolvedEpisode) {
	gw.episode = ep
	gw.lava = newPositionSet(ep.Lava)
	gw.nActions = gw.config.NumActions()

	gw.agent = newAgent(ep.Agent)
	gw.predator = nil
	if ep.Predator != nil {
		gw.predator = newPredator(*ep.Predator, gw.config.PredatorMoveProb)
	}
	gw.resource = nil
	if ep.Resource != nil {
		gw.resource = newResource(*ep.Resource, gw.config.ResourceMoveProb)
	}
	gw.restart()
}

// restart puts every entity back on its start cell and clears the episode's rewards.
func (gw *GridWorld) restart() {
	gw.board = newBoard(&gw.episode, gw.config.LavaReward, gw.config.GreenReward)
	for _, entity := range gw.Entities() {
		entity.reset()
	}
	gw.hasLastAction = false
	gw.lastReward = 0
	gw.fullReward = 0
	gw.done = gw.board.at(gw.agent.pos).IsTerminal
}

// Reset starts a new episode with the current resolved configuration and returns the
// initial state.
func (gw *GridWorld) Reset() int {
	gw.restart()
	return gw.Encode(gw.agent.pos)
}

// FullReset resamples every random field of the config and starts a new episode. On error the
// world is left as it was.
func (gw *GridWorld) FullReset() error {
	ep, err := Resolve(gw.config, gw.rng)
	if err != nil {
		return fmt.Errorf("full reset: %w", err)
	}
	gw.install(ep)
	return nil
}

// Step applies one tick: the predator wanders, the resource wanders unless taken or eaten,
// then the agent's action is applied. The reward is the agent's new cell reward plus any feed
// bonus plus the tick penalty. An out of range action fails before anything is mutated.
func (gw *GridWorld) Step(action int) (state int, reward float64, done bool, err error) {
	if action < 0 || action >= gw.nActions {
		err = fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidAction, action, gw.nActions)
		return
	}
	act := Action(action)
	gw.lastAction = act
	gw.hasLastAction = true

	var lastPredatorPos Position
	if gw.predator != nil {
		lastPredatorPos = gw.predator.pos
		if dx, dy, ok := gw.predator.wander(gw.rng, gw.predator.moveProb, gw.episode.Width, gw.episode.Height, gw.lava); ok {
			gw.predator.moveBy(dx, dy)
			gw.board.move(PredatorKind, gw.predator.prev, gw.predator.pos)
		}
	}
	if gw.resource != nil && !gw.resource.frozen() {
		if dx, dy, ok := gw.resource.wander(gw.rng, gw.resource.moveProb, gw.episode.Width, gw.episode.Height, gw.lava); ok {
			gw.resource.moveBy(dx, dy)
			gw.board.move(ResourceKind, gw.resource.prev, gw.resource.pos)
		}
	}

	feedReward := 0.0
	switch {
	case act.IsMove():
		dx, dy := act.Delta()
		if inBounds(gw.agent.pos.Add(dx, dy), gw.episode.Width, gw.episode.Height) {
			gw.moveAgent(dx, dy)
		}
	case act == Take:
		gw.take()
	case act == PutFeed:
		feedReward = gw.putOrFeed(lastPredatorPos)
	}

	cell := gw.board.at(gw.agent.pos)
	gw.lastReward = cell.Reward + feedReward + gw.config.TickPenalty
	gw.fullReward += gw.lastReward
	gw.done = cell.IsTerminal || (gw.predator != nil && gw.predator.isFed)

	return gw.Encode(gw.agent.pos), gw.lastReward, gw.done, nil
}

// moveAgent moves the agent, carrying the resource along if it holds it.
func (gw *GridWorld) moveAgent(dx, dy int) {
	gw.agent.moveBy(dx, dy)
	gw.board.move(AgentKind, gw.agent.prev, gw.agent.pos)
	if gw.agent.carryingResource {
		gw.resource.moveBy(dx, dy)
		gw.board.move(ResourceKind, gw.resource.prev, gw.resource.pos)
	}
}

func (gw *GridWorld) take() {
	res := gw.resource
	if res == nil || res.isTaken || res.isEaten || gw.agent.pos != res.pos {
		return
	}
	gw.agent.carryingResource = true
	res.isTaken = true
}

// putOrFeed releases the carried resource. It is fed to the predator only if the predator was
// already on the agent's cell before this tick and stayed there; a predator that has just
// arrived does not eat.
func (gw *GridWorld) putOrFeed(lastPredatorPos Position) float64 {
	if !gw.agent.carryingResource {
		return 0
	}
	gw.agent.carryingResource = false
	gw.resource.isTaken = false

	pred := gw.predator
	if pred != nil && gw.agent.pos == pred.pos && gw.agent.pos == lastPredatorPos {
		gw.resource.isEaten = true
		pred.isFed = true
		return gw.config.PredatorFedReward
	}
	return 0
}

// Encode maps a position to its state index.
func (gw *GridWorld) Encode(pos Position) int {
	return pos.Y*gw.episode.Width + pos.X
}

// Decode maps a state index back to its position.
func (gw *GridWorld) Decode(state int) (Position, error) {
	if state < 0 || state >= gw.NStates() {
		return Position{}, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidState, state, gw.NStates())
	}
	return Position{X: state % gw.episode.Width, Y: state / gw.episode.Width}, nil
}

// Cell returns a copy of the board cell at pos.
func (gw *GridWorld) Cell(pos Position) (Cell, error) {
	if !inBounds(pos, gw.episode.Width, gw.episode.Height) {
		return Cell{}, fmt.Errorf("%w: %v is off the board", ErrInvalidState, pos)
	}
	return gw.board.Cell(pos), nil
}

// Entities returns the entities currently on the board: the agent first, then the predator and
// the resource when configured.
func (gw *GridWorld) Entities() []Entity {
	entities := []Entity{gw.agent}
	if gw.predator != nil {
		entities = append(entities, gw.predator)
	}
	if gw.resource != nil {
		entities = append(entities, gw.resource)
	}
	return entities
}

// GameSize returns (width, height).
func (gw *GridWorld) GameSize() (int, int) { return gw.episode.Width, gw.episode.Height }
func (gw *GridWorld) NActions() int        { return gw.nActions }
func (gw *GridWorld) NStates() int         { return gw.episode.Width * gw.episode.Height }
func (gw *GridWorld) Done() bool           { return gw.done }
func (gw *GridWorld) FullReward() float64  { return gw.fullReward }
func (gw *GridWorld) LastReward() float64  { return gw.lastReward }
func (gw *GridWorld) Board() *Board        { return gw.board }
func (gw *GridWorld) Config() EpisodeConfig {
	return gw.config
}

// Episode returns a copy of the current resolved configuration.
func (gw *GridWorld) Episode() ResolvedEpisode {
	ep := gw.episode
	ep.Lava = clonePositions(ep.Lava)
	ep.Green = clonePositions(ep.Green)
	ep.Terminal = clonePositions(ep.Terminal)
	return ep
}

// LastAction returns the action of the last step; ok is false right after a reset.
func (gw *GridWorld) LastAction() (action Action, ok bool) {
	return gw.lastAction, gw.hasLastAction
}

func (gw *GridWorld) Agent() *Agent               { return gw.agent }
func (gw *GridWorld) AgentPosition() Position     { return gw.agent.pos }
func (gw *GridWorld) AgentCarryingResource() bool { return gw.agent.carryingResource }
func (gw *GridWorld) HasPredator() bool           { return gw.predator != nil }
func (gw *GridWorld) HasResource() bool           { return gw.resource != nil }

func (gw *GridWorld) Predator() (*Predator, error) {
	if gw.predator == nil {
		return nil, ErrNoPredator
	}
	return gw.predator, nil
}

func (gw *GridWorld) PredatorPosition() (Position, error) {
	if gw.predator == nil {
		return Position{}, ErrNoPredator
	}
	return gw.predator.pos, nil
}

func (gw *GridWorld) PredatorIsFed() (bool, error) {
	if gw.predator == nil {
		return false, ErrNoPredator
	}
	return gw.predator.isFed, nil
}

func (gw *GridWorld) Resource() (*Resource, error) {
	if gw.resource == nil {
		return nil, ErrNoResource
	}
	return gw.resource, nil
}

func (gw *GridWorld) ResourcePosition() (Position, error) {
	if gw.resource == nil {
		return Position{}, ErrNoResource
	}
	return gw.resource.pos, nil
}

func (gw *GridWorld) LavaCells() []Position     { return clonePositions(gw.episode.Lava) }
func (gw *GridWorld) GreenCells() []Position    { return clonePositions(gw.episode.Green) }
func (gw *GridWorld) TerminalCells() []Position { return clonePositions(gw.episode.Terminal) }
