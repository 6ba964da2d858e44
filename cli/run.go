package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/config"
	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/fieldbus"
	"go.viam.com/flexblock/fieldbus/fake"
	"go.viam.com/flexblock/flex"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/mac"
	"go.viam.com/flexblock/mac/macsim"
)

// SimAdapter is the master adapter name that runs the loop against simulated drives.
const SimAdapter = "sim"

const statusInterval = 10 * time.Second

// RunAction starts the motor interface and the control loop described by a config and runs them
// until interrupted or until --duration has passed.
func RunAction(c *cli.Context) error {
	cfg, err := config.Read(c.String(generalFlagConfig))
	if err != nil {
		return err
	}
	logger, closer := newLogger(c, &cfg.Log)
	defer func() {
		if err := closer.Close(); err != nil {
			warningf(c.App.ErrWriter, "cannot close log files: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration(runFlagDuration); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	s, err := newSculpture(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		s.close(c)
	}()

	logger.Infow("flexblock running", "shape", cfg.Shape.Name, "config", cfg.ConfigFilePath)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// sculpture is everything RunAction starts.
type sculpture struct {
	logger     logging.Logger
	frequency  float64
	loop       *control.Loop
	controller *mac.Controller
	watcher    *config.Watcher
	status     *goutils.StoppableWorkers
}

func newSculpture(ctx context.Context, logger logging.Logger, cfg *config.Config) (_ *sculpture, err error) {
	topo, err := flex.NewTopology(cfg.Shape)
	if err != nil {
		return nil, err
	}
	initial := flex.NewInput(topo.Motors)
	if path := cfg.PresetsPath(); path != "" {
		presets, err := config.ReadPresets(path)
		if err != nil {
			return nil, err
		}
		if in, ok := presets.Input(config.InitialPreset, topo.Motors); ok {
			initial = in
		}
	}

	s := &sculpture{logger: logger, frequency: cfg.Loop.Frequency}
	defer func() {
		if err != nil {
			s.close(nil)
		}
	}()

	var motors control.Motors
	if cfg.Master != nil {
		session, err := newSession(cfg, topo, initial)
		if err != nil {
			return nil, err
		}
		master, err := fieldbus.NewMaster(logger.Sublogger("fieldbus"), *cfg.Master, session)
		if err != nil {
			return nil, err
		}
		s.controller, err = mac.NewController(logger.Sublogger("mac"), cfg.MAC, master, nil)
		if err != nil {
			return nil, err
		}
		if err := s.controller.Start(ctx); err != nil {
			return nil, err
		}
		motors = s.controller
	} else {
		logger.Info("no master configured, simulating only")
	}

	s.loop, err = control.NewLoop(logger.Sublogger("loop"), cfg.Loop, flex.NewEngine(topo, cfg.Loop.Frequency), motors, nil)
	if err != nil {
		return nil, err
	}
	for _, acfg := range cfg.Adapters {
		a, err := adapter.New(acfg, logger.Sublogger("adapter"))
		if err != nil {
			return nil, err
		}
		s.loop.Adapters().Add(a)
	}
	if err := s.loop.SetInput(initial); err != nil {
		return nil, err
	}

	if path := cfg.PresetsPath(); path != "" {
		s.watcher, err = config.NewWatcher(logger.Sublogger("presets"), path, func(p config.Presets) {
			in, ok := p.Input(config.InitialPreset, topo.Motors)
			if !ok {
				return
			}
			if err := s.loop.SetInput(in); err != nil {
				logger.Warnw("cannot apply preset", "preset", config.InitialPreset, "error", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	s.loop.Start()
	s.status = goutils.NewStoppableWorkerWithTicker(statusInterval, func(context.Context) {
		stats, err := s.loop.Stats()
		if err != nil {
			return
		}
		logger.Infow("loop status", "ticks", stats.Ticks, "frequency", stats.Frequency,
			"tick_p99", stats.TickP99, "running", s.loop.Running())
	})
	return s, nil
}

// newSession opens the transport named by the master adapter. Only simulated drives are built
// in; they start at the positions the initial input maps to so nothing moves on start.
func newSession(cfg *config.Config, topo *flex.Topology, initial flex.Input) (fieldbus.Session, error) {
	if cfg.Master.Adapter != SimAdapter {
		return nil, errors.Errorf("no fieldbus transport for adapter %q, only %q is built in", cfg.Master.Adapter, SimAdapter)
	}
	engine := flex.NewEngine(topo, cfg.Loop.Frequency)
	lengths := control.ComposeRopeLengths(engine.RopeLengths(), initial, cfg.Loop, 0)

	mapping := cfg.Loop.MotorMapping
	if len(mapping) == 0 {
		mapping = make([]int, topo.Motors)
		for i := range mapping {
			mapping[i] = i
		}
	}
	slaves := 0
	for _, slave := range mapping {
		slaves = max(slaves, slave+1)
	}
	positions := make([]int32, slaves)
	for rope, slave := range mapping {
		if slave >= 0 {
			positions[slave] = cfg.Loop.StepPosition(lengths[rope])
		}
	}
	devices := make([]fake.Device, slaves)
	for i, p := range positions {
		devices[i] = macsim.NewDrive(fmt.Sprintf("MAC400-%d", i), p)
	}
	return fake.NewSession(nil, devices...), nil
}

// close stops everything in reverse start order and, with a cli context, prints the final loop
// and drive status.
func (s *sculpture) close(c *cli.Context) {
	if s.status != nil {
		s.status.Stop()
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warnw("cannot close presets watcher", "error", err)
		}
	}
	if s.loop != nil {
		s.loop.Stop()
	}
	if s.controller != nil {
		if err := s.controller.Stop(context.Background()); err != nil {
			s.logger.Warnw("cannot stop motor controller", "error", err)
		}
	}
	if c == nil {
		return
	}
	if s.loop != nil {
		if stats, err := s.loop.Stats(); err == nil {
			printf(c.App.Writer, "%s", statsTable(s.frequency, stats))
		}
	}
	if s.controller != nil && s.controller.SlaveCount() > 0 {
		printf(c.App.Writer, "%s", slavesTable(s.controller.Slaves()))
	}
}
