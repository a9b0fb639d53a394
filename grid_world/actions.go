package grid_world

import (
	"fmt"
	"strconv"
)

// Action is an agent action index. Movement actions are always available; Take and PutFeed
// exist only when a resource is on the board.
type Action int

const (
	Left Action = iota
	Up
	Right
	Down
	Take
	// PutFeed drops the carried resource, or feeds it to the predator when both share a cell.
	PutFeed
)

// Action space sizes.
const (
	NUM_MOVES             = 4
	NUM_ACTIONS_BASIC     = 4
	NUM_ACTIONS_RESOURCES = 6
)

func (a Action) String() string {
	switch a {
	case Left:
		return "left"
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Take:
		return "take"
	case PutFeed:
		return "put/feed"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction accepts an action name ("left", "take", ...) or its index. Range checks against a
// particular world are left to Step.
func ParseAction(s string) (Action, error) {
	for a := Left; a <= PutFeed; a++ {
		if s == a.String() {
			return a, nil
		}
	}
	if s == "put" || s == "feed" {
		return PutFeed, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return Action(i), nil
}

// IsMove is true for the four directional actions.
func (a Action) IsMove() bool {
	return a >= Left && a <= Down
}

// Delta returns the unit displacement of a move action, (0,0) for anything else.
// The y-axis grows downward, as rows are printed top to bottom.
func (a Action) Delta() (dx, dy int) {
	switch a {
	case Left:
		return -1, 0
	case Up:
		return 0, -1
	case Right:
		return 1, 0
	case Down:
		return 0, 1
	}
	return 0, 0
}

// Position is a board coordinate, 0 <= X < width and 0 <= Y < height.
type Position struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// Add returns the position displaced by dx, dy.
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Manhattan returns the L1 distance between two positions.
func (p Position) Manhattan(other Position) int {
	return absInt(p.X-other.X) + absInt(p.Y-other.Y)
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// positionSet is a membership set over positions.
type positionSet map[Position]struct{}

func newPositionSet(groups ...[]Position) positionSet {
	set := positionSet{}
	for _, group := range groups {
		for _, pos := range group {
			set[pos] = struct{}{}
		}
	}
	return set
}

func (s positionSet) has(pos Position) bool {
	_, ok := s[pos]
	return ok
}
