package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/MrSnakeDoc/warden/internal/printer"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	Level string    // "debug","info","warn","error"
	JSON  bool      // one JSON object per line, for the daemon under a log collector
	Color bool      // colorize console output
	Out   io.Writer // default os.Stdout
}

var (
	mu       sync.RWMutex
	zlog     *zap.SugaredLogger
	out      io.Writer = os.Stdout
	p        *printer.ColorPrinter
	jsonMode bool
)

// Configure replaces the global logger. Until it is called every helper is a no-op.
func Configure(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	out = opts.Out
	if out == nil {
		out = os.Stdout
	}
	jsonMode = opts.JSON

	var enc zapcore.Encoder
	if opts.JSON {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.CallerKey = ""
		encCfg.MessageKey = "msg"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg"})
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), parseLevel(opts.Level))
	zlog = zap.New(core).Sugar()
	p = printer.NewColorPrinter(opts.Color && !opts.JSON)
}

// UseTestMode silences everything below error and discards the output.
func UseTestMode() {
	Configure(Options{Level: "error", Out: io.Discard})
}

// ---- Public logging API ----

func Info(msg string, args ...interface{}) {
	emit(zapcore.InfoLevel, infoStyle, "✨ ", msg, args)
}

func Success(msg string, args ...interface{}) {
	emit(zapcore.InfoLevel, successStyle, "✅ ", msg, args)
}

func LogError(msg string, args ...interface{}) {
	emit(zapcore.ErrorLevel, errorStyle, "❌ ", msg, args)
}

func Warn(msg string, args ...interface{}) {
	emit(zapcore.WarnLevel, warnStyle, "⚠️ ", msg, args)
}

func Debug(msg string, args ...interface{}) {
	emit(zapcore.DebugLevel, debugStyle, "🛠️ ", msg, args)
}

// Event logs msg with structured key/value pairs at info level. In JSON
// mode the pairs become top-level fields.
func Event(msg string, kv ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if zlog != nil {
		zlog.Infow(msg, kv...)
	}
}

// DebugEvent is Event at debug level.
func DebugEvent(msg string, kv ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if zlog != nil {
		zlog.Debugw(msg, kv...)
	}
}

// ---- Tables ----

func CreateTable(headers []string) *tablewriter.Table {
	mu.RLock()
	defer mu.RUnlock()
	t := tablewriter.NewTable(out)
	t.Header(headers)
	return t
}

// ---- internals ----

type style func(*printer.ColorPrinter) func(string, ...interface{}) string

var (
	infoStyle    style = func(c *printer.ColorPrinter) func(string, ...interface{}) string { return c.Info }
	successStyle style = func(c *printer.ColorPrinter) func(string, ...interface{}) string { return c.Success }
	errorStyle   style = func(c *printer.ColorPrinter) func(string, ...interface{}) string { return c.Error }
	warnStyle    style = func(c *printer.ColorPrinter) func(string, ...interface{}) string { return c.Warning }
	debugStyle   style = func(c *printer.ColorPrinter) func(string, ...interface{}) string { return c.Debug }
)

// emit formats lazily: nothing is rendered when the level is disabled.
// Console lines get an icon and color; JSON lines carry the bare message.
func emit(level zapcore.Level, pick style, icon, msg string, args []interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if zlog == nil || !zlog.Desugar().Core().Enabled(level) {
		return
	}

	var line string
	if jsonMode {
		line = fmt.Sprintf(msg, args...)
	} else {
		line = pick(p)(icon+msg, args...)
	}

	switch level {
	case zapcore.DebugLevel:
		zlog.Debug(line)
	case zapcore.WarnLevel:
		zlog.Warn(line)
	case zapcore.ErrorLevel:
		zlog.Error(line)
	default:
		zlog.Info(line)
	}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
