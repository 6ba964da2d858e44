package fieldbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/utils"
)

// Master drives one bus through its slave state machine and exchanges process data with it.
type Master struct {
	cfg     Config
	session Session
	handler Handler
	logger  logging.Logger

	mu            sync.Mutex
	started       bool
	processWorker *goutils.StoppableWorkers
	errorWorker   *goutils.StoppableWorkers

	slaves      atomic.Int64
	expectedWKC atomic.Int64
	actualWKC   atomic.Int64
	operational atomic.Bool
	checkState  atomic.Bool

	// Owned by the error worker once it runs.
	lost []bool
}

// NewMaster returns a stopped master. The handler is usually set once with SetHandler before
// Start, by the component that consumes the process data.
func NewMaster(logger logging.Logger, cfg Config, session Session) (*Master, error) {
	if err := cfg.Validate("master"); err != nil {
		return nil, err
	}
	return &Master{
		cfg:     cfg,
		session: session,
		logger:  logger,
	}, nil
}

// SetHandler sets the lifecycle handler. It must not be called while the master runs.
func (m *Master) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Session returns the bus transport.
func (m *Master) Session() Session {
	return m.session
}

// Start opens the bus, walks every slave up to the operational state and starts the process and
// error workers. A bus without slaves is not an error: the master stays stopped.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	if m.handler == nil {
		return errors.New("fieldbus master has no handler")
	}

	if err := m.session.Open(m.cfg.Adapter); err != nil {
		return errors.Wrapf(err, "no socket connection on adapter %q", m.cfg.Adapter)
	}
	count, err := m.session.ConfigInit()
	if err != nil {
		return multierr.Combine(errors.Wrap(err, "cannot initialize slaves"), m.session.Close())
	}
	if count <= 0 {
		m.logger.Warnw("no slaves found", "adapter", m.cfg.Adapter)
		return m.session.Close()
	}
	m.slaves.Store(int64(count))
	m.lost = make([]bool, count)
	m.logger.Infow("slaves found and configured", "count", count)

	if err := m.session.ConfigDC(); err != nil {
		m.logger.Warnw("cannot configure distributed clocks", "error", err)
	}
	m.handler.OnStart()

	if st := m.session.StateCheck(AllSlaves, StatePreOperational, stateTimeout); st != StatePreOperational {
		m.logger.Warnw("not all slaves reached pre-operational state", "state", st)
	}
	m.forEachSlaveIn(StatePreOperational, m.handler.OnPreOperational)

	if err := m.session.ConfigMap(); err != nil {
		return multierr.Combine(errors.Wrap(err, "cannot map process data"), m.session.Close())
	}
	m.logger.Info("all slaves mapped")

	if st := m.session.StateCheck(AllSlaves, StateSafeOperational, stateTimeout); st != StateSafeOperational {
		m.logger.Warnw("not all slaves reached safe-operational state", "state", st)
	}
	m.expectedWKC.Store(int64(m.session.ExpectedWorkCounter()))
	m.logger.Infow("calculated work counter", "expected", m.expectedWKC.Load())

	for i := 0; i < count; i++ {
		m.logger.Infow("slave", "index", i, "name", m.session.SlaveName(i), "state", m.session.State(i))
	}
	m.forEachSlaveIn(StateSafeOperational, m.handler.OnSafeOperational)

	// Process data must flow before slaves accept the operational state.
	m.operational.Store(false)
	m.processWorker = goutils.NewStoppableWorkerWithTicker(m.cfg.CycleTime(), m.process)
	m.errorWorker = goutils.NewStoppableWorkerWithTicker(m.cfg.ErrorCycleTime(), m.checkErrors)
	m.started = true

	m.logger.Info("requesting operational state for all slaves")
	if err := m.session.RequestState(AllSlaves, StateOperational); err != nil {
		m.logger.Warnw("cannot request operational state", "error", err)
	}
	if st := m.session.StateCheck(AllSlaves, StateOperational, m.cfg.OperationalTimeout()); st != StateOperational {
		err := multierr.Append(errors.New("not all slaves reached operational state"), m.statusError(StateOperational))
		if m.cfg.ForceOperational {
			return multierr.Combine(err, m.stopLocked(ctx))
		}
		m.logger.Warnw("continuing without all slaves operational", "error", err)
	} else {
		m.logger.Info("all slaves reached operational state")
		m.operational.Store(true)
	}

	m.forEachSlaveIn(StateOperational, m.handler.OnOperational)
	return nil
}

// Stop stops the workers, requests the init state for all slaves and closes the bus.
func (m *Master) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Master) stopLocked(ctx context.Context) error {
	if !m.started {
		return nil
	}
	defer utils.SlowLogger(ctx, "waiting for fieldbus master to stop", "adapter", m.cfg.Adapter, m.logger)()

	m.errorWorker.Stop()
	m.handler.OnStopProcessing()
	m.processWorker.Stop()
	m.handler.OnStop()

	var errs error
	if err := m.session.RequestState(AllSlaves, StateInit); err != nil {
		errs = multierr.Append(errs, err)
	}
	if st := m.session.StateCheck(AllSlaves, StateInit, stateTimeout); st != StateInit {
		m.logger.Warnw("not all slaves reached init state", "state", st)
	}
	errs = multierr.Append(errs, m.session.Close())

	m.started = false
	m.processWorker = nil
	m.errorWorker = nil
	m.actualWKC.Store(0)
	m.expectedWKC.Store(0)
	m.operational.Store(false)
	return errs
}

// Running reports whether the process worker is exchanging data.
func (m *Master) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Operational reports whether every slave reached the operational state on Start.
func (m *Master) Operational() bool {
	return m.operational.Load()
}

// SlaveCount is the number of slaves found on the last Start.
func (m *Master) SlaveCount() int {
	return int(m.slaves.Load())
}

// SlaveState returns the last known state of a slave.
func (m *Master) SlaveState(slave int) SlaveState {
	return m.session.State(slave)
}

// ExpectedWorkCounter is the work counter of a cycle in which every slave answered.
func (m *Master) ExpectedWorkCounter() int {
	return int(m.expectedWKC.Load())
}

// ActualWorkCounter is the work counter of the last cycle.
func (m *Master) ActualWorkCounter() int {
	return int(m.actualWKC.Load())
}

// SDOWrite writes a service data object.
func (m *Master) SDOWrite(slave int, index uint16, subindex uint8, data []byte) error {
	if slave < 0 || slave >= m.SlaveCount() {
		return utils.NewIndexOutOfRangeError("slave", slave, m.SlaveCount())
	}
	return errors.Wrapf(m.session.SDOWrite(slave, index, subindex, data), "sdo write 0x%04x:%d to slave %d", index, subindex, slave)
}

func (m *Master) forEachSlaveIn(state SlaveState, fn func(int)) {
	if err := m.session.ReadState(); err != nil {
		m.logger.Warnw("cannot read slave states", "error", err)
	}
	for i := 0; i < m.SlaveCount(); i++ {
		if m.session.State(i) == state {
			fn(i)
		}
	}
}

// statusError lists every slave that is not in the required state.
func (m *Master) statusError(required SlaveState) error {
	if err := m.session.ReadState(); err != nil {
		return err
	}
	var errs error
	for i := 0; i < m.SlaveCount(); i++ {
		st := m.session.State(i)
		if st == required {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("slave %d state=%s status code=0x%04x", i, st, m.session.ALStatus(i)))
	}
	return errs
}

func (m *Master) process(ctx context.Context) {
	m.handler.OnProcess()
	wkc, err := m.session.Exchange(ctx)
	if err != nil {
		m.logger.Debugw("process data exchange failed", "error", err)
	}
	m.actualWKC.Store(int64(wkc))
}

func (m *Master) checkErrors(ctx context.Context) {
	if !m.operational.Load() {
		return
	}
	if m.ActualWorkCounter() == m.ExpectedWorkCounter() && !m.checkState.Load() {
		return
	}
	m.processErrors(ctx)
}

// processErrors walks every slave that left the operational state back up to it.
func (m *Master) processErrors(ctx context.Context) {
	m.checkState.Store(false)
	if err := m.session.ReadState(); err != nil {
		m.logger.Warnw("cannot read slave states", "error", err)
	}
	recovery := m.cfg.RecoveryTimeout()

	for slave := 0; slave < m.SlaveCount(); slave++ {
		if ctx.Err() != nil {
			return
		}
		st := m.session.State(slave)
		if st != StateOperational {
			m.checkState.Store(true)
			switch {
			case st == StateSafeOperational|StateError:
				m.logger.Errorw("slave is in safe-operational with error, acknowledging", "slave", slave)
				if err := m.session.RequestState(slave, StateSafeOperational|StateAck); err != nil {
					m.logger.Warnw("cannot acknowledge slave error", "slave", slave, "error", err)
				}
			case st == StateSafeOperational:
				m.logger.Warnw("slave is in safe-operational, changing to operational", "slave", slave)
				m.handler.OnSafeOperational(slave)
				if err := m.session.RequestState(slave, StateOperational); err != nil {
					m.logger.Warnw("cannot request operational state", "slave", slave, "error", err)
				}
				if m.session.StateCheck(slave, StateOperational, stateTimeout) == StateOperational {
					m.handler.OnOperational(slave)
					m.logger.Infow("slave operational", "slave", slave)
				} else {
					m.logger.Infow("slave unable to reach operational state", "slave", slave)
				}
			case st > StateNone:
				if m.session.Reconfigure(slave, recovery) {
					m.lost[slave] = false
					m.logger.Infow("slave reconfigured", "slave", slave)
				}
			case !m.lost[slave]:
				if m.session.StateCheck(slave, StateOperational, stateTimeout) == StateNone {
					m.lost[slave] = true
					m.logger.Errorw("slave lost", "slave", slave)
				}
			}
		}

		if !m.lost[slave] {
			continue
		}
		if m.session.State(slave) == StateNone {
			if m.session.Recover(slave, recovery) {
				m.lost[slave] = false
				m.logger.Infow("slave recovered", "slave", slave)
			}
		} else {
			m.lost[slave] = false
			m.logger.Infow("slave found", "slave", slave)
		}
	}

	if !m.checkState.Load() {
		m.logger.Info("all slaves resumed operational")
	}
}

// WaitOperational blocks until every slave reports the operational state or ctx is done.
func (m *Master) WaitOperational(ctx context.Context, poll time.Duration) bool {
	for {
		all := m.SlaveCount() > 0
		for i := 0; i < m.SlaveCount(); i++ {
			if m.session.State(i) != StateOperational {
				all = false
				break
			}
		}
		if all {
			return true
		}
		if !goutils.SelectContextOrWait(ctx, poll) {
			return false
		}
	}
}
