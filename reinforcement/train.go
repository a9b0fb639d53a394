package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"mdpviz/atomic_float"

	log "github.com/sirupsen/logrus"
)

// ProgressFunc is a callback by which the training method can lend progress details,
// while exercising some level of control over its cancellation to prevent blocking.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, int)

// Stats are running totals over finished episodes. They are written by one goroutine and may
// be read from any other.
type Stats struct {
	episodes          atomic.Int64
	steps             atomic.Int64
	totalReward       atomic_float.AtomicFloat64
	lastEpisodeReward atomic_float.AtomicFloat64
	episodeReward     atomic_float.AtomicFloat64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Episodes          int64   `json:"episodes"`
	Steps             int64   `json:"steps"`
	TotalReward       float64 `json:"totalReward"`
	LastEpisodeReward float64 `json:"lastEpisodeReward"`
	EpisodeReward     float64 `json:"episodeReward"`
}

// record accounts for one transition, closing the episode when done.
func (st *Stats) record(reward float64, done bool) {
	st.steps.Add(1)
	st.totalReward.AtomicAdd(reward)
	episodeReward := st.episodeReward.AtomicAdd(reward)
	if done {
		st.episodes.Add(1)
		st.lastEpisodeReward.AtomicSet(episodeReward)
		st.episodeReward.AtomicSet(0)
	}
}

// abandonEpisode drops the running reward of an unfinished episode, e.g. on reset.
func (st *Stats) abandonEpisode() {
	st.episodeReward.AtomicSet(0)
}

func (st *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Episodes:          st.episodes.Load(),
		Steps:             st.steps.Load(),
		TotalReward:       st.totalReward.AtomicRead(),
		LastEpisodeReward: st.lastEpisodeReward.AtomicRead(),
		EpisodeReward:     st.episodeReward.AtomicRead(),
	}
}

// Summary describes a finished headless training run.
type Summary struct {
	Episodes          int
	Steps             int
	TotalReward       float64
	LastEpisodeReward float64
	// Finished counts the episodes that ended in a terminal state rather than at the step cap.
	Finished int
}

// Train runs episodes of Q-learning until the configured episode count is reached or ctx ends.
// Each episode starts from a reset and is cut off after maxSteps transitions. A training
// deadline on ctx is a normal way to stop and is not reported as an error.
func Train(
	ctx context.Context,
	learner *QLearner,
	cfg *TrainingConfig,
	progressFn ProgressFunc,
) (summary Summary, err error) {
	eta := cfg.GetHyperParamOrDefault(ETA, DEFAULT_ETA)
	gamma := cfg.GetHyperParamOrDefault(GAMMA, DEFAULT_GAMMA)
	epsilon := cfg.GetHyperParamOrDefault(EPSILON, DEFAULT_EPSILON)
	episodes := int(cfg.GetHyperParamOrDefault(EPISODES, DEFAULT_EPISODES))
	maxSteps := int(cfg.GetHyperParamOrDefault(MAX_STEPS, DEFAULT_MAX_STEPS))
	if err = checkParams(eta, gamma, epsilon); err != nil {
		return
	}
	if maxSteps <= 0 {
		err = fmt.Errorf("%w: %s=%d must be positive", ErrInvalidParam, MAX_STEPS, maxSteps)
		return
	}

	log.WithFields(log.Fields{
		"eta":      eta,
		"gamma":    gamma,
		"epsilon":  epsilon,
		"episodes": episodes,
		"maxSteps": maxSteps,
	}).Info("training started")

	for ep := 0; ep < episodes; ep++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				log.WithField("episodes", summary.Episodes).Info("training deadline reached")
				return summary, nil
			}
			return summary, ctxErr
		}

		learner.Reset()
		reward, done, trace, stepErr := learner.Steps(maxSteps, eta, gamma, epsilon)
		if stepErr != nil {
			return summary, fmt.Errorf("episode %d: %w", ep, stepErr)
		}

		summary.Episodes++
		summary.Steps += len(trace.Actions)
		summary.TotalReward += reward
		summary.LastEpisodeReward = reward
		if done {
			summary.Finished++
		}
		log.WithFields(log.Fields{
			"episode": ep,
			"reward":  reward,
			"steps":   len(trace.Actions),
			"done":    done,
		}).Debug("episode")

		if progressFn != nil {
			progressFn(ctx, summary.Episodes)
		}
	}

	log.WithFields(log.Fields{
		"episodes":    summary.Episodes,
		"finished":    summary.Finished,
		"totalReward": summary.TotalReward,
	}).Info("training finished")
	return summary, nil
}
