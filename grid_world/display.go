package grid_world

import (
	"fmt"
	"io"
	"math"
)

// Cell type runes used by the console printers.
const (
	EMPTY    = '.'
	LAVA     = 'L'
	GREEN    = 'G'
	TERMINAL = 'T'
	AGENT    = 'A'
	PREDATOR = 'P'
	RESOURCE = 'R'
)

// QValuer yields the action values of a state.
type QValuer interface {
	GetQValues(state int) ([]float64, error)
}

// cellRune returns the rune of the highest priority thing in the cell: entities before
// static cell types.
func cellRune(cell *Cell) rune {
	switch {
	case cell.AgentIsHere:
		return AGENT
	case cell.PredatorIsHere:
		return PREDATOR
	case cell.ResourceIsHere:
		return RESOURCE
	case cell.IsLava:
		return LAVA
	case cell.IsGreen:
		return GREEN
	case cell.IsTerminal:
		return TERMINAL
	}
	return EMPTY
}

// ShowGrid prints the board, for visual reference.
func ShowGrid(w io.Writer, gw *GridWorld) {
	for y := range gw.board.cells {
		for x := range gw.board.cells[y] {
			fmt.Fprintf(w, "%c ", cellRune(&gw.board.cells[y][x]))
		}
		fmt.Fprintln(w)
	}
}

// ShowValues prints the state value, max over actions, of every cell.
func ShowValues(w io.Writer, gw *GridWorld, q QValuer) error {
	fmt.Fprintln(w, "Max vals:")
	total := 0.0
	for y := 0; y < gw.episode.Height; y++ {
		fmt.Fprint(w, " ")
		for x := 0; x < gw.episode.Width; x++ {
			vals, err := q.GetQValues(gw.Encode(Position{X: x, Y: y}))
			if err != nil {
				return err
			}
			val := maxOf(vals)
			fmt.Fprintf(w, "%6.2f ", val)
			total += val
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total: %.2f\n", total)
	return nil
}

// ShowPolicy prints the greedy action of every non-terminal cell as an arrow, or the
// action's name initial for take/put. Terminal cells show '-'.
func ShowPolicy(w io.Writer, gw *GridWorld, q QValuer) error {
	for y := 0; y < gw.episode.Height; y++ {
		fmt.Fprint(w, " ")
		for x := 0; x < gw.episode.Width; x++ {
			pos := Position{X: x, Y: y}
			if gw.board.at(pos).IsTerminal {
				fmt.Fprint(w, "- ")
				continue
			}
			vals, err := q.GetQValues(gw.Encode(pos))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%c ", actionRune(argmax(vals)))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func actionRune(action Action) rune {
	switch action {
	case Left:
		return '<'
	case Up:
		return '^'
	case Right:
		return '>'
	case Down:
		return 'v'
	case Take:
		return 't'
	case PutFeed:
		return 'p'
	}
	return '?'
}

func maxOf(vals []float64) float64 {
	max := -math.MaxFloat64
	for _, val := range vals {
		if val > max {
			max = val
		}
	}
	return max
}

// argmax returns the first index of the max value.
func argmax(vals []float64) Action {
	best := 0
	for i, val := range vals {
		if val > vals[best] {
			best = i
		}
	}
	return Action(best)
}
