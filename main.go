/*
Mdpviz runs a small grid-world game and a tabular Q-learner on it. Either the learner trains
headless for a while and prints what it learned, or a driver steps it on command and an http
server publishes every frame (positions, cell rewards, Q-values, greedy policy) over a websocket
for a front end to draw. A human can also play the game through the same commands, in which case
the learner still learns from their moves.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"

	"mdpviz/grid_world"
	"mdpviz/reinforcement"
	"mdpviz/server"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Environment overrides for the flags, also read from an optional .env file.
const (
	ENV_HOST   = "MDPVIZ_HOST"
	ENV_PORT   = "MDPVIZ_PORT"
	ENV_CONFIG = "MDPVIZ_CONFIG"
)

var (
	dbg        = flag.Bool("debug", false, "debug logging")
	headless   = flag.Bool("headless", false, "train until the deadline, print the results and exit")
	host       = flag.String("host", "", "The host ip")
	port       = flag.String("port", "8080", "The host port")
	configPath = flag.String("config", "./config.yaml", "training config")
)

type settings struct {
	host, port, config string
}

func (s settings) addr() string {
	return net.JoinHostPort(s.host, s.port)
}

// withEnv fills settings from environment variables, except those whose flag was passed on the
// command line: flags win over the environment, which wins over flag defaults.
func withEnv(s settings, getenv func(string) string, passed map[string]bool) settings {
	for _, override := range []struct {
		flag, env string
		val       *string
	}{
		{"host", ENV_HOST, &s.host},
		{"port", ENV_PORT, &s.port},
		{"config", ENV_CONFIG, &s.config},
	} {
		if passed[override.flag] {
			continue
		}
		if v := getenv(override.env); v != "" {
			*override.val = v
		}
	}
	return s
}

// passedFlags returns the names of the flags set on the command line.
func passedFlags(flags *flag.FlagSet) map[string]bool {
	passed := map[string]bool{}
	flags.Visit(func(f *flag.Flag) {
		passed[f.Name] = true
	})
	return passed
}

func loadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func runApp(ctx context.Context, set settings) (err error) {
	var cfg *reinforcement.TrainingConfig
	if cfg, err = reinforcement.FromYaml(set.config); err != nil {
		return
	}

	var episode grid_world.EpisodeConfig
	if episode, err = cfg.EpisodeConfig(); err != nil {
		return
	}

	seed := cfg.Seed()
	log.WithFields(log.Fields{
		"mode": episode.Mode,
		"seed": seed,
	}).Info("starting")

	var world *grid_world.GridWorld
	if world, err = grid_world.New(episode, rand.New(rand.NewSource(seed))); err != nil {
		return
	}
	learner := reinforcement.NewQLearner(world, rand.New(rand.NewSource(seed+1)))

	if *headless {
		return trainHeadless(ctx, world, learner, cfg)
	}
	return serve(ctx, set.addr(), world, learner, cfg)
}

func trainHeadless(
	ctx context.Context,
	world *grid_world.GridWorld,
	learner *reinforcement.QLearner,
	cfg *reinforcement.TrainingConfig,
) error {
	trainingCtx, cancel, err := cfg.WithTrainingDeadline(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	summary, err := reinforcement.Train(trainingCtx, learner, cfg, logProgress)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"episodes": summary.Episodes,
		"finished": summary.Finished,
		"reward":   summary.TotalReward,
	}).Info("training finished")

	learner.Reset()
	grid_world.ShowGrid(os.Stdout, world)
	if err = grid_world.ShowValues(os.Stdout, world, learner); err != nil {
		return err
	}
	return grid_world.ShowPolicy(os.Stdout, world, learner)
}

func logProgress(_ context.Context, episodes int) {
	if episodes%100 == 0 {
		log.WithField("episodes", episodes).Debug("training progress")
	}
}

// serve runs the driver and the server until ctx ends or either fails.
func serve(
	ctx context.Context,
	addr string,
	world *grid_world.GridWorld,
	learner *reinforcement.QLearner,
	cfg *reinforcement.TrainingConfig,
) error {
	driver := reinforcement.NewDriver(world, learner, cfg)
	srv := server.NewServer(addr, driver, driver.Frames(), driver.Stats())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return driver.Run(groupCtx)
	})
	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	return group.Wait()
}

func main() {
	flag.Parse()
	if *dbg {
		log.SetLevel(log.DebugLevel)
	}
	if err := loadEnv(); err != nil {
		log.WithError(err).Fatal("failed to load .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set := withEnv(
		settings{host: *host, port: *port, config: *configPath},
		os.Getenv,
		passedFlags(flag.CommandLine))
	if err := runApp(ctx, set); err != nil {
		log.WithError(err).Fatal("mdpviz failed")
	}
}
