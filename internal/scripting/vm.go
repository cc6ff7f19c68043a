package scripting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// LogEntry represents a single log message from the script.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
	maxLogs           = 200
)

// Program is a compiled strategy script. It is safe to share; each
// NewScript call gets its own runtime.
type Program struct {
	name string
	prog *goja.Program
}

// Compile parses a strategy script.
func Compile(name, source string) (*Program, error) {
	prog, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return &Program{name: name, prog: prog}, nil
}

// Factory returns a Factory producing one Script per call.
func (p *Program) Factory() Factory {
	return func() (Strategy, error) { return NewScript(p) }
}

// Script is a Strategy backed by a sandboxed goja runtime. The script must
// define decide(state) returning "attack", "defend", "cashout" or "wait".
type Script struct {
	name    string
	runtime *goja.Runtime
	decide  goja.Callable
	mu      sync.Mutex

	logs   []LogEntry
	logsMu sync.Mutex
}

// NewScript runs p in a fresh runtime and resolves its decide function.
func NewScript(p *Program) (*Script, error) {
	s := &Script{name: p.name, runtime: goja.New()}
	s.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	s.injectGlobalFunctions()

	err := s.runWithTimeout(scriptInitTimeout, func() error {
		_, err := s.runtime.RunProgram(p.prog)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", p.name, err)
	}

	fn := s.runtime.Get("decide")
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return nil, fmt.Errorf("script %s: decide() function is not defined", p.name)
	}
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("script %s: decide is not a function", p.name)
	}
	s.decide = callable
	return s, nil
}

// injectGlobalFunctions registers log and console.log, the action names,
// and removes globals a strategy has no business touching.
func (s *Script) injectGlobalFunctions() {
	s.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}

		s.logsMu.Lock()
		if len(s.logs) >= maxLogs {
			s.logs = s.logs[1:]
		}
		s.logs = append(s.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		s.logsMu.Unlock()

		return goja.Undefined()
	})

	console := s.runtime.NewObject()
	console.Set("log", s.runtime.Get("log"))
	s.runtime.Set("console", console)

	s.runtime.Set("ATTACK", string(ActionAttack))
	s.runtime.Set("DEFEND", string(ActionDefend))
	s.runtime.Set("CASHOUT", string(ActionCashOut))
	s.runtime.Set("WAIT", string(ActionWait))

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		s.runtime.Set(name, goja.Undefined())
	}
}

func (s *Script) Name() string { return s.name }

// Decide calls decide(state). A script that throws, runs too long or returns
// something other than an action name is an error.
func (s *Script) Decide(st State) (Action, error) {
	var out goja.Value
	err := s.runWithTimeout(scriptCallTimeout, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		v, err := s.decide(goja.Undefined(), s.runtime.ToValue(st))
		out = v
		return err
	})
	if err != nil {
		return "", fmt.Errorf("decide(): %w", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return ActionWait, nil
	}
	return ParseAction(out.String())
}

// Logs returns a copy of the script's log buffer.
func (s *Script) Logs() []LogEntry {
	s.logsMu.Lock()
	defer s.logsMu.Unlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *Script) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		// Interrupt a runaway script execution.
		s.runtime.Interrupt("script execution timeout")
		err := <-done
		s.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("script timed out: %w", err)
		}
		return fmt.Errorf("script timed out")
	}
}
