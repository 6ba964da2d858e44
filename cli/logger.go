package cli

import (
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/flexblock/config"
	"go.viam.com/flexblock/logging"
)

type closers []io.Closer

func (cs closers) Close() error {
	var errs error
	for _, c := range cs {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

// newLogger builds the process logger. Logs go to the app's error writer so tables on the
// regular writer stay clean. A log file from the config and one from --log-file are both
// honored. The returned closer flushes and closes any log files.
func newLogger(c *cli.Context, logCfg *config.LogConfig) (logging.Logger, io.Closer) {
	logger := logging.NewBlankLogger("flexblock")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))

	level := logging.INFO
	var files []logging.FileConfig
	if logCfg != nil {
		level = logCfg.Level
		if logCfg.File != nil {
			files = append(files, *logCfg.File)
		}
	}
	if c.Bool(generalFlagDebug) {
		level = logging.DEBUG
	}
	if path := c.String(generalFlagLogFile); path != "" {
		files = append(files, logging.FileConfig{Path: path})
	}
	logger.SetLevel(level)

	var cs closers
	for _, f := range files {
		appender, closer := logging.NewFileAppender(f)
		logger.AddAppender(appender)
		cs = append(cs, closer)
	}
	return logger, cs
}
