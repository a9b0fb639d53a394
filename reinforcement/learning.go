package reinforcement

/*
Online epsilon-greedy Q-learning over a grid world. The learner observes only the agent's cell,
so everything the predator and resource do is folded into the environment's stochasticity.
The table is small and dense, one row per board cell, and every update is applied in place
after each transition:

	Q[s,a] += lr * (r + gamma * max(Q[s1,:]) - Q[s,a])

Nothing here is safe for concurrent use; the Driver serializes all calls from one goroutine.
*/

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"mdpviz/grid_world"
)

// MAX_FLOAT_DIFF is the tolerance under which two action values count as tied.
const MAX_FLOAT_DIFF = 1e-6

var ErrInvalidParam = errors.New("invalid hyperparameter")

// Environment is the MDP interface the learner drives. *grid_world.GridWorld implements it.
type Environment interface {
	Step(action int) (state int, reward float64, done bool, err error)
	Reset() int
	FullReset() error
	NStates() int
	NActions() int
	Encode(pos grid_world.Position) int
	Decode(state int) (grid_world.Position, error)
}

// Trace records the transitions of one learning call. States starts with the state the call
// began in, so it holds one more entry than Actions and Rewards.
type Trace struct {
	States  []int
	Actions []int
	Rewards []float64
}

// QLearning runs up to nSteps epsilon-greedy transitions from state, updating table after each.
// It stops early when the environment reports done; resetting is left to the caller.
// The returned reward is the sum over the transitions taken.
func QLearning(
	env Environment,
	table *QTable,
	state int,
	nSteps int,
	lr, gamma, eps float64,
	rng *rand.Rand,
) (reward float64, lastState int, done bool, trace Trace, err error) {
	if err = checkParams(lr, gamma, eps); err != nil {
		return 0, state, false, trace, err
	}

	trace.States = append(trace.States, state)
	for i := 0; i < nSteps; i++ {
		action := selectAction(table.Row(state), eps, rng)

		next, r, stepDone, stepErr := update(env, table, state, action, lr, gamma)
		if stepErr != nil {
			return reward, state, done, trace, fmt.Errorf("step %d: %w", i, stepErr)
		}
		done = stepDone

		reward += r
		trace.States = append(trace.States, next)
		trace.Actions = append(trace.Actions, action)
		trace.Rewards = append(trace.Rewards, r)
		state = next
		if done {
			break
		}
	}
	return reward, state, done, trace, nil
}

// update applies action in state and moves Q[state,action] toward the bootstrapped target.
func update(
	env Environment,
	table *QTable,
	state, action int,
	lr, gamma float64,
) (next int, reward float64, done bool, err error) {
	if next, reward, done, err = env.Step(action); err != nil {
		return
	}
	delta := reward + gamma*table.Max(next) - table.At(state, action)
	table.Add(state, action, lr*delta)
	return
}

func checkParams(lr, gamma, eps float64) error {
	for name, val := range map[string]float64{
		"learning rate": lr,
		"gamma":         gamma,
		"epsilon":       eps,
	} {
		if val < 0 || val > 1 {
			return fmt.Errorf("%w: %s=%.3f not in [0,1]", ErrInvalidParam, name, val)
		}
	}
	return nil
}

// selectAction picks uniformly at random with probability eps, otherwise greedily.
func selectAction(qvals []float64, eps float64, rng *rand.Rand) int {
	if rng.Float64() < eps {
		return rng.Intn(len(qvals))
	}
	return greedyAction(qvals, rng)
}

// greedyAction returns an action of maximal value, choosing uniformly among all actions within
// MAX_FLOAT_DIFF of the max so that ties carry no index bias.
func greedyAction(qvals []float64, rng *rand.Rand) int {
	best := qvals[0]
	for _, val := range qvals[1:] {
		if val > best {
			best = val
		}
	}
	candidates := make([]int, 0, len(qvals))
	for action, val := range qvals {
		if best-val < MAX_FLOAT_DIFF {
			candidates = append(candidates, action)
		}
	}
	return candidates[rng.Intn(len(candidates))]
}

// QLearner owns a Q table and drives a borrowed environment with it.
type QLearner struct {
	env   Environment
	rng   *rand.Rand
	table *QTable
	state int
}

// NewQLearner builds a learner with a zeroed table sized from env and resets env to begin
// the first episode. A nil rng is replaced by a time-seeded source.
func NewQLearner(env Environment, rng *rand.Rand) *QLearner {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ql := &QLearner{
		env: env,
		rng: rng,
	}
	ql.ResetQ()
	return ql
}

// Step takes a single transition. See Steps.
func (ql *QLearner) Step(lr, gamma, eps float64) (float64, bool, Trace, error) {
	return ql.Steps(1, lr, gamma, eps)
}

// Steps takes up to n transitions, stopping when the episode ends. The learner does not reset
// on done; call Reset before stepping again.
func (ql *QLearner) Steps(n int, lr, gamma, eps float64) (float64, bool, Trace, error) {
	reward, state, done, trace, err := QLearning(ql.env, ql.table, ql.state, n, lr, gamma, eps, ql.rng)
	ql.state = state
	return reward, done, trace, err
}

// Act applies a chosen action, e.g. one made by a human player, and learns from the outcome
// the same way Step does.
func (ql *QLearner) Act(action int, lr, gamma float64) (float64, bool, error) {
	if err := checkParams(lr, gamma, 0); err != nil {
		return 0, false, err
	}
	next, reward, done, err := update(ql.env, ql.table, ql.state, action, lr, gamma)
	if err != nil {
		return 0, false, err
	}
	ql.state = next
	return reward, done, nil
}

// GetQValues returns a copy of the action values of state.
func (ql *QLearner) GetQValues(state int) ([]float64, error) {
	nStates, _ := ql.table.Dims()
	if state < 0 || state >= nStates {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", grid_world.ErrInvalidState, state, nStates)
	}
	return ql.table.Row(state), nil
}

// GetQValuesAt returns the action values of the state encoding pos. A position off the board
// is rejected rather than aliased onto another cell's state.
func (ql *QLearner) GetQValuesAt(pos grid_world.Position) ([]float64, error) {
	state := ql.env.Encode(pos)
	if decoded, err := ql.env.Decode(state); err != nil || decoded != pos {
		return nil, fmt.Errorf("%w: %v is off the board", grid_world.ErrInvalidState, pos)
	}
	return ql.GetQValues(state)
}

// GetValue returns the greedy value estimate of state.
func (ql *QLearner) GetValue(state int) (float64, error) {
	nStates, _ := ql.table.Dims()
	if state < 0 || state >= nStates {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", grid_world.ErrInvalidState, state, nStates)
	}
	return ql.table.Max(state), nil
}

// Reset starts a new episode, keeping the table.
func (ql *QLearner) Reset() int {
	ql.state = ql.env.Reset()
	return ql.state
}

// ResetQ replaces the table with a zeroed one sized from the environment and starts a new episode.
func (ql *QLearner) ResetQ() {
	ql.table = NewQTable(ql.env.NStates(), ql.env.NActions())
	ql.state = ql.env.Reset()
}

// FullReset resamples the environment, then clears the table.
func (ql *QLearner) FullReset() error {
	if err := ql.env.FullReset(); err != nil {
		return err
	}
	ql.ResetQ()
	return nil
}

func (ql *QLearner) State() int { return ql.state }

// Table exposes the learner's table for read-only use, such as display.
func (ql *QLearner) Table() *QTable { return ql.table }

// QValues returns a snapshot of the whole table.
func (ql *QLearner) QValues() [][]float64 { return ql.table.Rows() }
