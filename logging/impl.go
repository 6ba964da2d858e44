package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	impl struct {
		name  string
		level AtomicLevel
		inUTC bool

		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}
)

// appendersMu guards appender slices shared between a logger and its subloggers.
var appendersMu sync.RWMutex

// callerSkip is the number of frames between getCaller and the code that called a log method:
// getCaller, entry and the log method itself.
const callerSkip = 3

func (imp *impl) AddAppender(appender Appender) {
	appendersMu.Lock()
	imp.appenders = append(imp.appenders, appender)
	appendersMu.Unlock()
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}

	appendersMu.RLock()
	defer appendersMu.RUnlock()
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	appendersMu.RLock()
	defer appendersMu.RUnlock()

	var errs error
	for _, appender := range imp.appenders {
		errs = multierr.Append(errs, appender.Sync())
	}
	return errs
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	// Appenders that are zap cores, the test observer among them, keep receiving entries.
	appendersMu.RLock()
	var cores []zapcore.Core
	for _, appender := range imp.appenders {
		if core, ok := appender.(zapcore.Core); ok {
			cores = append(cores, core)
		}
	}
	appendersMu.RUnlock()

	cfg := NewZapLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(imp.level.Get().AsZap())
	ret := zap.Must(cfg.Build()).Sugar().Named(imp.name)
	for _, core := range cores {
		ret = ret.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	return ret
}

func (imp *impl) enabled(level Level) bool {
	return level >= imp.level.Get()
}

// entry builds a log entry. It must be called directly from a log method so the caller is
// attributed correctly.
func (imp *impl) entry(level Level, msg string, keysAndValues []interface{}) *LogEntry {
	e := &LogEntry{}
	e.Time = time.Now()
	if imp.inUTC {
		e.Time = e.Time.UTC()
	}
	e.LoggerName = imp.name
	e.Caller = getCaller()
	e.Level = level.AsZap()
	e.Message = msg
	if len(keysAndValues) != 0 {
		e.fields = toFields(keysAndValues)
	}
	return e
}

// toFields pairs up keys and values. A trailing key without a value gets an error value rather
// than being dropped.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) write(e *LogEntry) {
	appendersMu.RLock()
	defer appendersMu.RUnlock()
	for _, appender := range imp.appenders {
		if err := appender.Write(e.Entry, e.fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.entry(DEBUG, fmt.Sprint(args...), nil))
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.entry(DEBUG, fmt.Sprintf(template, args...), nil))
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(DEBUG) {
		imp.write(imp.entry(DEBUG, msg, keysAndValues))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.entry(INFO, fmt.Sprint(args...), nil))
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.entry(INFO, fmt.Sprintf(template, args...), nil))
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(INFO) {
		imp.write(imp.entry(INFO, msg, keysAndValues))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.entry(WARN, fmt.Sprint(args...), nil))
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.entry(WARN, fmt.Sprintf(template, args...), nil))
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(WARN) {
		imp.write(imp.entry(WARN, msg, keysAndValues))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.entry(ERROR, fmt.Sprint(args...), nil))
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.entry(ERROR, fmt.Sprintf(template, args...), nil))
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(ERROR) {
		imp.write(imp.entry(ERROR, msg, keysAndValues))
	}
}

func getCaller() zapcore.EntryCaller {
	var caller zapcore.EntryCaller
	var ok bool
	caller.PC, caller.File, caller.Line, ok = runtime.Caller(callerSkip)
	if !ok {
		return caller
	}
	caller.Defined = true
	if fn := runtime.FuncForPC(caller.PC); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
