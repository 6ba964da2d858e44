package fieldbus_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/flexblock/fieldbus"
	"go.viam.com/flexblock/fieldbus/fake"
	"go.viam.com/flexblock/logging"
)

// echoDevice copies the first output byte to the first input byte.
type echoDevice struct {
	name string
}

func (d *echoDevice) Name() string    { return d.name }
func (d *echoDevice) InputSize() int  { return 4 }
func (d *echoDevice) OutputSize() int { return 4 }

func (d *echoDevice) Process(outputs, inputs []byte, _ time.Duration) {
	if outputs != nil {
		inputs[0] = outputs[0]
	}
}

func (d *echoDevice) SDOWrite(uint16, uint8, []byte) error { return nil }

type recorder struct {
	mu        sync.Mutex
	events    []string
	processed int
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Processed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processed
}

func (r *recorder) OnStart()                    { r.add("start") }
func (r *recorder) OnPreOperational(slave int)  { r.add(fmt.Sprintf("preop %d", slave)) }
func (r *recorder) OnSafeOperational(slave int) { r.add(fmt.Sprintf("safeop %d", slave)) }
func (r *recorder) OnOperational(slave int)     { r.add(fmt.Sprintf("op %d", slave)) }
func (r *recorder) OnStopProcessing()           { r.add("stop processing") }
func (r *recorder) OnStop()                     { r.add("stop") }

func (r *recorder) OnProcess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
}

func newMaster(t *testing.T, cfg fieldbus.Config, devices int) (*fieldbus.Master, *fake.Session, *recorder) {
	t.Helper()
	devs := make([]fake.Device, devices)
	for i := range devs {
		devs[i] = &echoDevice{name: fmt.Sprintf("drive%d", i)}
	}
	session := fake.NewSession(nil, devs...)
	m, err := fieldbus.NewMaster(logging.NewTestLogger(t), cfg, session)
	test.That(t, err, test.ShouldBeNil)
	rec := &recorder{}
	m.SetHandler(rec)
	return m, session, rec
}

func TestMasterLifecycle(t *testing.T) {
	ctx := context.Background()
	m, session, rec := newMaster(t, fieldbus.Config{Adapter: "eth0"}, 2)

	test.That(t, m.Start(ctx), test.ShouldBeNil)
	test.That(t, m.Running(), test.ShouldBeTrue)
	test.That(t, m.Operational(), test.ShouldBeTrue)
	test.That(t, m.SlaveCount(), test.ShouldEqual, 2)
	test.That(t, m.ExpectedWorkCounter(), test.ShouldEqual, 6)
	test.That(t, session.Adapter(), test.ShouldEqual, "eth0")
	test.That(t, rec.Events(), test.ShouldResemble, []string{
		"start", "preop 0", "preop 1", "safeop 0", "safeop 1", "op 0", "op 1",
	})
	for i := 0; i < 2; i++ {
		test.That(t, m.SlaveState(i), test.ShouldEqual, fieldbus.StateOperational)
	}

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, rec.Processed(), test.ShouldBeGreaterThan, 2)
		test.That(tb, m.ActualWorkCounter(), test.ShouldEqual, 6)
	})

	// Starting twice does nothing.
	test.That(t, m.Start(ctx), test.ShouldBeNil)
	test.That(t, rec.Events(), test.ShouldHaveLength, 7)

	test.That(t, m.Stop(ctx), test.ShouldBeNil)
	test.That(t, m.Running(), test.ShouldBeFalse)
	test.That(t, m.ActualWorkCounter(), test.ShouldEqual, 0)
	test.That(t, session.IsOpen(), test.ShouldBeFalse)
	events := rec.Events()
	test.That(t, events[len(events)-2:], test.ShouldResemble, []string{"stop processing", "stop"})

	processed := rec.Processed()
	time.Sleep(20 * time.Millisecond)
	test.That(t, rec.Processed(), test.ShouldEqual, processed)

	test.That(t, m.Stop(ctx), test.ShouldBeNil)
}

func TestMasterNoSlaves(t *testing.T) {
	m, session, rec := newMaster(t, fieldbus.Config{Adapter: "eth0"}, 0)
	test.That(t, m.Start(context.Background()), test.ShouldBeNil)
	test.That(t, m.Running(), test.ShouldBeFalse)
	test.That(t, session.IsOpen(), test.ShouldBeFalse)
	test.That(t, rec.Events(), test.ShouldBeEmpty)
}

func TestMasterOpenError(t *testing.T) {
	m, session, _ := newMaster(t, fieldbus.Config{Adapter: "eth9"}, 1)
	session.OpenErr = fmt.Errorf("no such device")
	err := m.Start(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `no socket connection on adapter "eth9"`)
	test.That(t, m.Running(), test.ShouldBeFalse)
}

func TestMasterNoHandler(t *testing.T) {
	m, err := fieldbus.NewMaster(logging.NewTestLogger(t), fieldbus.Config{Adapter: "eth0"}, fake.NewSession(nil))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Start(context.Background()), test.ShouldBeError, "fieldbus master has no handler")
}

func TestMasterForceOperational(t *testing.T) {
	ctx := context.Background()

	m, session, rec := newMaster(t, fieldbus.Config{Adapter: "eth0", ForceOperational: true}, 2)
	session.Disconnect(1)
	err := m.Start(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not all slaves reached operational state")
	test.That(t, err.Error(), test.ShouldContainSubstring, "slave 1 state=none")
	test.That(t, m.Running(), test.ShouldBeFalse)
	test.That(t, rec.Events(), test.ShouldContain, "stop")

	m, session, rec = newMaster(t, fieldbus.Config{Adapter: "eth0"}, 2)
	session.Disconnect(1)
	test.That(t, m.Start(ctx), test.ShouldBeNil)
	test.That(t, m.Running(), test.ShouldBeTrue)
	test.That(t, m.Operational(), test.ShouldBeFalse)
	test.That(t, rec.Events(), test.ShouldContain, "op 0")
	test.That(t, rec.Events(), test.ShouldNotContain, "op 1")
	test.That(t, m.Stop(ctx), test.ShouldBeNil)
}

func TestMasterRecoversSlaves(t *testing.T) {
	ctx := context.Background()
	m, session, rec := newMaster(t, fieldbus.Config{Adapter: "eth0", ErrorCycleTimeMs: 1}, 3)
	test.That(t, m.Start(ctx), test.ShouldBeNil)
	defer func() {
		test.That(t, m.Stop(ctx), test.ShouldBeNil)
	}()

	// A latched error is acknowledged and the slave walked back up.
	session.SetState(0, fieldbus.StateSafeOperational|fieldbus.StateError)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, m.SlaveState(0), test.ShouldEqual, fieldbus.StateOperational)
	})
	test.That(t, rec.Events(), test.ShouldContain, "safeop 0")

	// A slave that dropped to pre-operational is reconfigured.
	session.SetState(1, fieldbus.StatePreOperational)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, m.SlaveState(1), test.ShouldEqual, fieldbus.StateOperational)
	})

	// A slave that left the bus is recovered once it is back.
	session.Disconnect(2)
	time.Sleep(10 * time.Millisecond)
	test.That(t, m.SlaveState(2), test.ShouldEqual, fieldbus.StateNone)
	session.Reconnect(2)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, m.SlaveState(2), test.ShouldEqual, fieldbus.StateOperational)
		test.That(tb, m.ActualWorkCounter(), test.ShouldEqual, m.ExpectedWorkCounter())
	})
}

func TestMasterSDOWrite(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMaster(t, fieldbus.Config{Adapter: "eth0"}, 1)
	test.That(t, m.Start(ctx), test.ShouldBeNil)
	defer func() {
		test.That(t, m.Stop(ctx), test.ShouldBeNil)
	}()
	test.That(t, m.SDOWrite(0, 0x2012, 4, []byte{1, 0, 0, 0}), test.ShouldBeNil)
	test.That(t, m.SDOWrite(3, 0x2012, 4, nil), test.ShouldBeError, "slave index 3 out of range [0, 1)")
}

func TestConfigValidate(t *testing.T) {
	cfg := fieldbus.Config{}
	err := cfg.Validate("master")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "adapter")

	cfg = fieldbus.Config{Adapter: "eth0", CycleTimeUs: -1}
	err = cfg.Validate("master")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cycle_time_us cannot be negative")

	cfg = fieldbus.Config{Adapter: "eth0", CycleTimeUs: 250}
	test.That(t, cfg.Validate("master"), test.ShouldBeNil)
	test.That(t, cfg.CycleTime(), test.ShouldEqual, 250*time.Microsecond)
	test.That(t, cfg.ErrorCycleTime(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.OperationalTimeout(), test.ShouldEqual, 10*time.Second)

	_, err = fieldbus.NewMaster(logging.NewTestLogger(t), fieldbus.Config{}, fake.NewSession(nil))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSlaveStateString(t *testing.T) {
	test.That(t, fieldbus.StateOperational.String(), test.ShouldEqual, "operational")
	test.That(t, (fieldbus.StateSafeOperational | fieldbus.StateError).String(), test.ShouldEqual, "safe_operational+error")
	test.That(t, fieldbus.SlaveState(0x07).String(), test.ShouldEqual, "0x07")
}
