package grid_world

// Cell holds the static attributes of one board coordinate plus the transient occupancy flags
// used for rendering and collision queries. Occupancy never feeds into rewards.
type Cell struct {
	X, Y       int
	Reward     float64
	IsTerminal bool
	IsLava     bool
	IsGreen    bool

	AgentIsHere    bool
	PredatorIsHere bool
	ResourceIsHere bool
}

// Board is a height x width grid of cells, indexed [y][x].
type Board struct {
	width, height int
	cells         [][]Cell
}

// newBoard builds the cells of a resolved episode. Lava rewards take precedence over green.
func newBoard(ep *ResolvedEpisode, lavaReward, greenReward float64) *Board {
	lava := newPositionSet(ep.Lava)
	green := newPositionSet(ep.Green)
	terminal := newPositionSet(ep.Terminal)

	cells := make([][]Cell, ep.Height)
	for y := range cells {
		cells[y] = make([]Cell, ep.Width)
		for x := range cells[y] {
			pos := Position{X: x, Y: y}
			cell := Cell{
				X:          x,
				Y:          y,
				IsLava:     lava.has(pos),
				IsGreen:    green.has(pos),
				IsTerminal: terminal.has(pos),
			}
			switch {
			case cell.IsLava:
				cell.Reward = lavaReward
			case cell.IsGreen:
				cell.Reward = greenReward
			}
			cells[y][x] = cell
		}
	}

	board := &Board{width: ep.Width, height: ep.Height, cells: cells}
	board.at(ep.Agent).AgentIsHere = true
	if ep.Predator != nil {
		board.at(*ep.Predator).PredatorIsHere = true
	}
	if ep.Resource != nil {
		board.at(*ep.Resource).ResourceIsHere = true
	}
	return board
}

func (b *Board) at(pos Position) *Cell {
	return &b.cells[pos.Y][pos.X]
}

// Cell returns a copy of the cell at pos.
func (b *Board) Cell(pos Position) Cell {
	return *b.at(pos)
}

func (b *Board) Width() int  { return b.width }
func (b *Board) Height() int { return b.height }

// move shifts the kind's occupancy flag from one cell to another.
func (b *Board) move(kind Kind, from, to Position) {
	b.setOccupied(kind, from, false)
	b.setOccupied(kind, to, true)
}

func (b *Board) setOccupied(kind Kind, pos Position, here bool) {
	cell := b.at(pos)
	switch kind {
	case AgentKind:
		cell.AgentIsHere = here
	case PredatorKind:
		cell.PredatorIsHere = here
	case ResourceKind:
		cell.ResourceIsHere = here
	}
}

// Visit calls fn for every cell, row by row.
func (b *Board) Visit(fn func(cell Cell)) {
	for y := range b.cells {
		for x := range b.cells[y] {
			fn(b.cells[y][x])
		}
	}
}
