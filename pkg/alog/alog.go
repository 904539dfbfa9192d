package alog

import (
	"bufio"
	"fmt"
	"io"
	golog "log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	loggers = make(map[string]*minilogger)
	logLock sync.RWMutex

	logRing *Ring // set by Init when Config.RingSize > 0
)

// AddLogger registers a named logger that only emits events at level or
// higher severity.
func AddLogger(name string, output io.Writer, level Level, color bool) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &minilogger{golog.New(output, "", golog.LstdFlags), level, color}
}

// addLogRing registers r directly as a logger sink, bypassing golog.New: a
// Ring only implements Println, not io.Writer.Write, so it can't go through
// AddLogger.
func addLogRing(name string, r *Ring, level Level) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &minilogger{r, level, false}
}

// DelLogger removes a named logger added with AddLogger.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

// LogAll reads r line by line until EOF, logging each line at level tagged
// with name. It starts a goroutine and returns immediately; gvd uses this
// to fold a spawned gvagent's stdout/stderr into its own structured logs
// instead of letting the subprocess inherit the raw fds.
func LogAll(r io.Reader, level Level, name string) {
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			logf(level, name, "%s", sc.Text())
		}
	}()
}

// Config controls Init's setup of the standard stderr/file/ring loggers.
type Config struct {
	Level   Level
	Verbose bool // log on stderr
	File    string

	// RingSize, when non-zero, keeps the last RingSize log lines in memory
	// for Recent to return, mirroring an operator diagnostic dump without
	// requiring a CLI.
	RingSize int
}

// Init wires up the standard loggers a CORE binary starts with.
func Init(cfg Config) error {
	color := runtime.GOOS != "windows"

	if cfg.Verbose {
		AddLogger("stdio", os.Stderr, cfg.Level, color)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}

		logfile, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0660)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}

		AddLogger("file", logfile, cfg.Level, false)
	}

	if cfg.RingSize > 0 {
		logRing = NewRing(cfg.RingSize)
		addLogRing("ring", logRing, cfg.Level)
	}

	return nil
}

// Recent returns the log ring's contents, oldest to newest, or nil if no
// ring was configured via Config.RingSize.
func Recent() []string {
	if logRing == nil {
		return nil
	}
	return logRing.Dump()
}

func logf(level Level, name, format string, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	for _, logger := range loggers {
		if logger.Level <= level {
			logger.log(level, name, format, arg...)
		}
	}
}

func Debug(format string, arg ...interface{}) { logf(DEBUG, "", format, arg...) }
func Info(format string, arg ...interface{})  { logf(INFO, "", format, arg...) }
func Warn(format string, arg ...interface{})  { logf(WARN, "", format, arg...) }
func Error(format string, arg ...interface{}) { logf(ERROR, "", format, arg...) }

func Fatal(format string, arg ...interface{}) {
	logf(FATAL, "", format, arg...)
	os.Exit(1)
}
