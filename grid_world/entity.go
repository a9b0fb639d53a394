package grid_world

import "math/rand"

// Kind tags the three entity variants living on the board.
type Kind int

const (
	AgentKind Kind = iota
	PredatorKind
	ResourceKind
)

func (k Kind) String() string {
	switch k {
	case AgentKind:
		return "agent"
	case PredatorKind:
		return "predator"
	case ResourceKind:
		return "resource"
	}
	return "unknown"
}

// Entity is the capability set shared by every variant: a position, a move, a reset.
type Entity interface {
	Kind() Kind
	Position() Position
	PrevPosition() Position
	reset()
}

// body holds the position state common to every entity.
// prev is (-1,-1) until the first move after a reset.
type body struct {
	pos   Position
	prev  Position
	start Position
}

func newBody(start Position) body {
	return body{pos: start, prev: Position{-1, -1}, start: start}
}

func (b *body) Position() Position     { return b.pos }
func (b *body) PrevPosition() Position { return b.prev }

// Delta is the displacement of the last move, or (0,0) if the entity has not moved since reset.
func (b *body) Delta() (dx, dy int) {
	if b.prev.X < 0 {
		return 0, 0
	}
	return b.pos.X - b.prev.X, b.pos.Y - b.prev.Y
}

func (b *body) moveBy(dx, dy int) {
	b.prev = b.pos
	b.pos = b.pos.Add(dx, dy)
}

func (b *body) reset() {
	b.pos = b.start
	b.prev = Position{-1, -1}
}

// wander picks a random legal unit move with probability moveProb. At most NUM_MOVES directions
// are sampled (with replacement); a sampled direction is legal if it stays on the board and does
// not enter lava. Returns ok=false when no move is made this tick.
func (b *body) wander(
	rng *rand.Rand,
	moveProb float64,
	width, height int,
	lava positionSet,
) (dx, dy int, ok bool) {
	if moveProb <= 0 || rng.Float64() >= moveProb {
		return 0, 0, false
	}
	for i := 0; i < NUM_MOVES; i++ {
		dx, dy = Action(rng.Intn(NUM_MOVES)).Delta()
		target := b.pos.Add(dx, dy)
		if !inBounds(target, width, height) || lava.has(target) {
			continue
		}
		return dx, dy, true
	}
	return 0, 0, false
}

func inBounds(pos Position, width, height int) bool {
	return pos.X >= 0 && pos.X < width && pos.Y >= 0 && pos.Y < height
}

// Agent is the entity whose actions are chosen by the policy or the player.
type Agent struct {
	body
	carryingResource bool
}

func newAgent(start Position) *Agent {
	return &Agent{body: newBody(start)}
}

func (a *Agent) Kind() Kind { return AgentKind }

// CarryingResource reports whether the agent holds the resource.
func (a *Agent) CarryingResource() bool { return a.carryingResource }

func (a *Agent) reset() {
	a.body.reset()
	a.carryingResource = false
}

// Predator wanders randomly, avoiding lava, and ends the episode once fed.
type Predator struct {
	body
	moveProb float64
	isFed    bool
}

func newPredator(start Position, moveProb float64) *Predator {
	return &Predator{body: newBody(start), moveProb: moveProb}
}

func (p *Predator) Kind() Kind { return PredatorKind }

// IsFed reports whether the predator has eaten the resource.
func (p *Predator) IsFed() bool { return p.isFed }

func (p *Predator) reset() {
	p.body.reset()
	p.isFed = false
}

// Resource wanders like the predator until it is taken or eaten.
type Resource struct {
	body
	moveProb float64
	isTaken  bool
	isEaten  bool
}

func newResource(start Position, moveProb float64) *Resource {
	return &Resource{body: newBody(start), moveProb: moveProb}
}

func (r *Resource) Kind() Kind { return ResourceKind }

// IsTaken reports whether the agent carries the resource.
func (r *Resource) IsTaken() bool { return r.isTaken }

// IsEaten reports whether the resource was fed to the predator.
func (r *Resource) IsEaten() bool { return r.isEaten }

func (r *Resource) frozen() bool { return r.isTaken || r.isEaten }

func (r *Resource) reset() {
	r.body.reset()
	r.isTaken = false
	r.isEaten = false
}
