package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mdpviz/grid_world"
	"mdpviz/models"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
	log "github.com/sirupsen/logrus"
)

// Driver commands.
const (
	CMD_STEP       = "step"
	CMD_RESET      = "reset"
	CMD_FULL_RESET = "full-reset"
	CMD_PLAY       = "play"
	CMD_PAUSE      = "pause"
	CMD_ACT        = "act"
)

// Driver hyperparameter keys.
const (
	PLAY_PERIOD_MS         = "playPeriodMs"
	DEFAULT_PLAY_PERIOD_MS = 500
)

var ErrUnknownCommand = errors.New("unknown command")

// Command asks the driver to do one thing. Action is only read by CMD_ACT.
type Command struct {
	Name   string
	Action int
	reply  chan error
}

// Driver owns a world and its learner and runs them from a single goroutine, so the core never
// sees concurrent calls. Commands come in through Send; a Frame goes out after every change.
// While playing, the driver steps the learner on a fixed period.
type Driver struct {
	world   *grid_world.GridWorld
	learner *QLearner
	runID   string

	eta, gamma, epsilon float64
	stepsPerTick        int
	playPeriod          time.Duration

	commands chan Command
	frames   chan models.Frame
	stats    *Stats
	seq      int64
	playing  bool
}

// NewDriver returns a paused driver. The learner must be driving world.
func NewDriver(
	world *grid_world.GridWorld,
	learner *QLearner,
	cfg *TrainingConfig,
) *Driver {
	stepsPerTick := int(cfg.GetHyperParamOrDefault(STEPS_PER_TICK, DEFAULT_STEPS_PER_TICK))
	if stepsPerTick < 1 {
		stepsPerTick = 1
	}
	playPeriod := time.Duration(cfg.GetHyperParamOrDefault(PLAY_PERIOD_MS, DEFAULT_PLAY_PERIOD_MS)) * time.Millisecond
	if playPeriod <= 0 {
		playPeriod = DEFAULT_PLAY_PERIOD_MS * time.Millisecond
	}

	return &Driver{
		world:        world,
		learner:      learner,
		runID:        uuid.NewString(),
		eta:          cfg.GetHyperParamOrDefault(ETA, DEFAULT_ETA),
		gamma:        cfg.GetHyperParamOrDefault(GAMMA, DEFAULT_GAMMA),
		epsilon:      cfg.GetHyperParamOrDefault(EPSILON, DEFAULT_EPSILON),
		stepsPerTick: stepsPerTick,
		playPeriod:   playPeriod,
		commands:     make(chan Command),
		frames:       make(chan models.Frame, 1),
		stats:        &Stats{},
	}
}

func (d *Driver) RunID() string { return d.runID }

// Stats returns the driver's running statistics, safe to read from any goroutine.
func (d *Driver) Stats() *Stats { return d.stats }

// Frames returns the latest-frame channel. It holds at most one frame; a frame nobody has
// received yet is replaced by a newer one. The channel is closed when Run returns.
func (d *Driver) Frames() <-chan models.Frame { return d.frames }

// Send delivers a command to the running driver and waits for its outcome.
func (d *Driver) Send(ctx context.Context, cmd Command) error {
	cmd.reply = make(chan error, 1)
	select {
	case d.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run serves commands and play ticks until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.frames)

	logger := log.WithField("run", d.runID)
	logger.WithFields(log.Fields{
		"eta":        d.eta,
		"gamma":      d.gamma,
		"epsilon":    d.epsilon,
		"playPeriod": d.playPeriod,
	}).Info("driver started")

	if err := d.publish(); err != nil {
		return err
	}

	ticker := channerics.NewTicker(ctx.Done(), d.playPeriod)
	for {
		select {
		case <-ctx.Done():
			logger.Info("driver stopped")
			return nil
		case cmd := <-d.commands:
			err := d.apply(cmd)
			if err != nil {
				logger.WithError(err).WithField("command", cmd.Name).Warn("command failed")
			} else {
				err = d.publish()
			}
			cmd.reply <- err
		case <-ticker:
			if !d.playing {
				continue
			}
			if err := d.tick(); err != nil {
				logger.WithError(err).Error("play tick failed, pausing")
				d.playing = false
				continue
			}
			if err := d.publish(); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) apply(cmd Command) error {
	switch cmd.Name {
	case CMD_STEP:
		return d.tick()
	case CMD_RESET:
		d.stats.abandonEpisode()
		d.learner.Reset()
	case CMD_FULL_RESET:
		if err := d.learner.FullReset(); err != nil {
			return err
		}
		d.stats.abandonEpisode()
	case CMD_PLAY:
		d.playing = true
	case CMD_PAUSE:
		d.playing = false
	case CMD_ACT:
		return d.act(cmd.Action)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	return nil
}

// tick advances the learner. A finished episode is reset instead of stepped, so the final
// position stays on screen for one tick.
func (d *Driver) tick() error {
	if d.world.Done() {
		d.learner.Reset()
		return nil
	}
	_, done, trace, err := d.learner.Steps(d.stepsPerTick, d.eta, d.gamma, d.epsilon)
	for i, reward := range trace.Rewards {
		d.stats.record(reward, done && i == len(trace.Rewards)-1)
	}
	if err != nil {
		return err
	}
	if done {
		snap := d.stats.Snapshot()
		log.WithFields(log.Fields{
			"run":     d.runID,
			"episode": snap.Episodes,
			"reward":  snap.LastEpisodeReward,
		}).Debug("episode finished")
	}
	return nil
}

// act applies a player's action, learning from it like any other transition. The action is
// checked before a finished episode is reset, so a rejected one leaves the world as published.
func (d *Driver) act(action int) error {
	if action < 0 || action >= d.world.NActions() {
		return fmt.Errorf("%w: %d not in [0,%d)", grid_world.ErrInvalidAction, action, d.world.NActions())
	}
	if d.world.Done() {
		d.learner.Reset()
	}
	reward, done, err := d.learner.Act(action, d.eta, d.gamma)
	if err != nil {
		return err
	}
	d.stats.record(reward, done)
	return nil
}

func (d *Driver) publish() error {
	frame, err := models.Convert(d.world, d.learner)
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	d.seq++
	frame.RunID = d.runID
	frame.Seq = d.seq

	select {
	case d.frames <- frame:
		return nil
	default:
	}
	// Replace the unread frame.
	select {
	case <-d.frames:
	default:
	}
	select {
	case d.frames <- frame:
	default:
	}
	return nil
}
