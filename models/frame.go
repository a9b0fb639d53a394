// models holds the view-models handed to the outer layers: a Frame is an immutable snapshot of
// the world plus the learner's values, safe to pass between goroutines and encode as json.
package models

import (
	"mdpviz/grid_world"
)

// Cell kinds.
const (
	EMPTY    = "empty"
	LAVA     = "lava"
	GREEN    = "green"
	TERMINAL = "terminal"
)

// Cell is one board cell with everything a view needs to draw it. Y grows downward, so
// [0][0] is the top left cell, matching svg coordinates.
type Cell struct {
	X                   int       `json:"x"`
	Y                   int       `json:"y"`
	Kind                string    `json:"kind"`
	Reward              float64   `json:"reward"`
	Max                 float64   `json:"max"`
	QValues             []float64 `json:"qValues,omitempty"`
	PolicyAction        string    `json:"policyAction,omitempty"`
	PolicyArrowRotation int       `json:"policyArrowRotation"`
	Fill                string    `json:"fill"`
}

// Entity is the view of the agent, predator or resource.
type Entity struct {
	Kind string `json:"kind"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	// DX, DY is the last move, for animating it.
	DX       int  `json:"dx"`
	DY       int  `json:"dy"`
	Carrying bool `json:"carrying,omitempty"`
	Fed      bool `json:"fed,omitempty"`
	Taken    bool `json:"taken,omitempty"`
	Eaten    bool `json:"eaten,omitempty"`
}

// Frame is a snapshot of one tick.
type Frame struct {
	RunID      string   `json:"runId"`
	Seq        int64    `json:"seq"`
	Mode       string   `json:"mode,omitempty"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Cells      [][]Cell `json:"cells"`
	Entities   []Entity `json:"entities"`
	LastAction string   `json:"lastAction,omitempty"`
	LastReward float64  `json:"lastReward"`
	FullReward float64  `json:"fullReward"`
	Done       bool     `json:"done"`
}

// Convert snapshots the world. values may be nil, e.g. in human play with nothing learned yet,
// in which case cells carry no values or policy.
func Convert(world *grid_world.GridWorld, values grid_world.QValuer) (frame Frame, err error) {
	width, height := world.GameSize()
	frame = Frame{
		Mode:       world.Config().Mode,
		Width:      width,
		Height:     height,
		Cells:      make([][]Cell, height),
		LastReward: world.LastReward(),
		FullReward: world.FullReward(),
		Done:       world.Done(),
	}
	if action, ok := world.LastAction(); ok {
		frame.LastAction = action.String()
	}

	for y := range frame.Cells {
		frame.Cells[y] = make([]Cell, width)
	}
	world.Board().Visit(func(c grid_world.Cell) {
		cell := Cell{
			X:      c.X,
			Y:      c.Y,
			Kind:   kindOf(&c),
			Reward: c.Reward,
		}
		cell.Fill = getFill(cell.Kind)
		frame.Cells[c.Y][c.X] = cell
	})

	if values != nil {
		for y := range frame.Cells {
			for x := range frame.Cells[y] {
				cell := &frame.Cells[y][x]
				var qvals []float64
				if qvals, err = values.GetQValues(world.Encode(grid_world.Position{X: x, Y: y})); err != nil {
					return
				}
				best := argmax(qvals)
				cell.QValues = qvals
				cell.Max = qvals[best]
				if cell.Kind != TERMINAL && cell.Kind != LAVA {
					cell.PolicyAction = best.String()
					cell.PolicyArrowRotation = getDegrees(best)
				}
			}
		}
	}

	for _, entity := range world.Entities() {
		frame.Entities = append(frame.Entities, convertEntity(entity))
	}
	return
}

func convertEntity(entity grid_world.Entity) Entity {
	pos := entity.Position()
	view := Entity{
		Kind: entity.Kind().String(),
		X:    pos.X,
		Y:    pos.Y,
	}
	switch e := entity.(type) {
	case *grid_world.Agent:
		view.DX, view.DY = e.Delta()
		view.Carrying = e.CarryingResource()
	case *grid_world.Predator:
		view.DX, view.DY = e.Delta()
		view.Fed = e.IsFed()
	case *grid_world.Resource:
		view.DX, view.DY = e.Delta()
		view.Taken = e.IsTaken()
		view.Eaten = e.IsEaten()
	}
	return view
}

func kindOf(c *grid_world.Cell) string {
	switch {
	case c.IsLava:
		return LAVA
	case c.IsGreen:
		return GREEN
	case c.IsTerminal:
		return TERMINAL
	}
	return EMPTY
}

func getFill(kind string) (fill string) {
	switch kind {
	case LAVA:
		fill = "orangered"
	case GREEN:
		fill = "lightgreen"
	case TERMINAL:
		fill = "lightyellow"
	default:
		fill = "lightgray"
	}
	return
}

// getDegrees is the rotation, clockwise from vertical, of an upward arrow pointing along a move.
// Take and put/feed have no direction and get 0.
func getDegrees(action grid_world.Action) int {
	switch action {
	case grid_world.Right:
		return 90
	case grid_world.Down:
		return 180
	case grid_world.Left:
		return 270
	}
	return 0
}

// argmax returns the first index of the max value.
func argmax(vals []float64) grid_world.Action {
	best := 0
	for i, val := range vals {
		if val > vals[best] {
			best = i
		}
	}
	return grid_world.Action(best)
}
