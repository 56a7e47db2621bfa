package contextify

import (
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

var consoleLevels = []string{"log", "info", "warn", "error", "debug"}

// console records script console output and mirrors it to the logger.
type console struct {
	mu      sync.Mutex
	entries []LogEntry
	limit   int
}

func (c *console) append(entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
	if c.limit > 0 && len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
}

// mark returns a position usable with since.
func (c *console) mark() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// since returns entries recorded after mark. Trimming may have dropped
// some of them.
func (c *console) since(mark int) []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mark > len(c.entries) {
		mark = 0
	}
	return append([]LogEntry(nil), c.entries[mark:]...)
}

func (c *console) all() []LogEntry {
	return c.since(0)
}

// installConsole puts a console object on the builtins global. A sandbox
// property named console shadows it.
func (e *engine) installConsole() {
	e.console = &console{limit: e.opts.config.ConsoleLimit}
	obj := e.vm.NewObject()
	for _, level := range consoleLevels {
		_ = obj.Set(level, e.consoleFunc(level))
	}
	_ = e.builtins.Set("console", obj)
}

func (e *engine) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		e.console.append(LogEntry{Level: level, Message: msg, Time: time.Now()})
		e.log.Console(level, msg, zap.String("source", "console"))
		return goja.Undefined()
	}
}

// Console returns every retained console entry of the context.
func (c *Context) Console() []LogEntry {
	e, err := c.engine()
	if err != nil || e.console == nil {
		return nil
	}
	return e.console.all()
}
