package reinforcement

import (
	"gonum.org/v1/gonum/mat"
)

// QTable holds the action values, one row per state and one column per action.
// Entries start at zero.
type QTable struct {
	values *mat.Dense
}

// NewQTable returns a zeroed nStates x nActions table. Both dimensions must be positive.
func NewQTable(nStates, nActions int) *QTable {
	return &QTable{
		values: mat.NewDense(nStates, nActions, nil),
	}
}

// Dims returns (nStates, nActions).
func (qt *QTable) Dims() (int, int) {
	return qt.values.Dims()
}

func (qt *QTable) At(state, action int) float64 {
	return qt.values.At(state, action)
}

// Add adds delta to the value of (state, action).
func (qt *QTable) Add(state, action int, delta float64) {
	qt.values.Set(state, action, qt.values.At(state, action)+delta)
}

// Row returns a copy of the action values of state.
func (qt *QTable) Row(state int) []float64 {
	return mat.Row(nil, state, qt.values)
}

// Max returns the greedy value of state.
func (qt *QTable) Max(state int) float64 {
	return mat.Max(qt.values.RowView(state))
}

// Zero resets every entry to zero.
func (qt *QTable) Zero() {
	qt.values.Zero()
}

// Rows returns a copy of the whole table, indexed [state][action].
func (qt *QTable) Rows() [][]float64 {
	nStates, _ := qt.Dims()
	rows := make([][]float64, nStates)
	for s := range rows {
		rows[s] = qt.Row(s)
	}
	return rows
}

// Equal reports whether two tables hold exactly the same values.
func (qt *QTable) Equal(other *QTable) bool {
	return mat.Equal(qt.values, other.values)
}

// Clone returns an independent copy of the table.
func (qt *QTable) Clone() *QTable {
	return &QTable{values: mat.DenseCopyOf(qt.values)}
}
