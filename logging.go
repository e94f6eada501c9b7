package pixelplace

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/gekko3d/pixelplace/canvas/logx"
	"github.com/natefinch/lumberjack"
)

type Logger = logx.Logger

type DefaultLogger struct {
	mu     sync.Mutex
	debug  bool
	prefix string
	out    *log.Logger
	err    *log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return newLogger(prefix, debug, os.Stdout, os.Stderr)
}

func newLogger(prefix string, debug bool, out, err io.Writer) *DefaultLogger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &DefaultLogger{
		debug:  debug,
		prefix: prefix,
		out:    log.New(out, "", flags),
		err:    log.New(err, "", flags),
	}
}

// LogConfig selects a rotating log file. An empty Logfile logs to stdout/stderr.
type LogConfig struct {
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"`
	MaxAge  int    `toml:"max_log_age"`
}

// NewFileLogger writes every level to a lumberjack rotated file. The returned
// closer releases the file.
func NewFileLogger(prefix string, debug bool, c LogConfig) (*DefaultLogger, io.Closer) {
	if c.Logfile == "" {
		return NewDefaultLogger(prefix, debug), io.NopCloser(nil)
	}
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	return newLogger(prefix, debug, l, l), l
}

func (l *DefaultLogger) DebugEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debug
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	l.mu.Lock()
	l.debug = enabled
	l.mu.Unlock()
}

func (l *DefaultLogger) prefixf(level string, format string, args ...any) string {
	if l.prefix != "" {
		return fmt.Sprintf("[%s] %s: %s", l.prefix, level, fmt.Sprintf(format, args...))
	}
	return fmt.Sprintf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *DefaultLogger) Debugf(format string, args ...any) {
	if !l.DebugEnabled() {
		return
	}
	l.out.Print(l.prefixf("DEBUG", format, args...))
}

func (l *DefaultLogger) Infof(format string, args ...any) {
	l.out.Print(l.prefixf("INFO", format, args...))
}

func (l *DefaultLogger) Warnf(format string, args ...any) {
	l.err.Print(l.prefixf("WARN", format, args...))
}

func (l *DefaultLogger) Errorf(format string, args ...any) {
	l.err.Print(l.prefixf("ERROR", format, args...))
}

// LoggingModule installs a logger as a resource. When File names a log file the
// output goes to a rotating file that is closed when the app reaches its final
// state.
type LoggingModule struct {
	Prefix string
	Debug  bool
	File   LogConfig
}

type logSink struct {
	closer io.Closer
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	logger, closer := NewFileLogger(m.Prefix, m.Debug, m.File)
	app.addResources(logger, &logSink{closer: closer})
	if m.File.Logfile != "" {
		fmt.Printf("Sending log messages to: %s\n", m.File.Logfile)
	}
	if app.stateful {
		app.UseSystem(
			System(closeLogSinkSystem).
				InStage(Finale).
				InState(OnExit(app.finalState)),
		)
	}
}

func closeLogSinkSystem(sink *logSink) {
	if err := sink.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
	}
}

func (s *logSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func NewNopLogger() Logger { return logx.Nop() }

// Logger returns the first Logger resource if present, otherwise a no-op logger.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
