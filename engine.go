package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
)

// Middleware wraps the mounting of a renderer with cross-cutting logic.
type Middleware func(props ExecutionProps, next MountFunc)

// MountFunc represents the next handler in the middleware chain.
type MountFunc func(props ExecutionProps)

// Engine resolves input lines against the registry and tracks invocations.
type Engine struct {
	registry     *Registry
	parser       *Parser
	history      *History
	tasks        *TaskManager
	middleware   []Middleware
	outputWriter io.Writer
	outputLevel  OutputLevel
	helpHeader   string
	promptBase   string
	logger       *slog.Logger
	recorder     HistoryRecorder
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
}

// Option configures the engine.
type Option func(*Engine)

// WithMiddleware appends middleware functions.
func WithMiddleware(mw ...Middleware) Option {
	return func(e *Engine) {
		e.middleware = append(e.middleware, mw...)
	}
}

// WithPrompt sets the prompt string.
func WithPrompt(prompt string) Option {
	return func(e *Engine) { e.promptBase = prompt }
}

// WithHelpHeader customises the help header string.
func WithHelpHeader(header string) Option {
	return func(e *Engine) { e.helpHeader = header }
}

// WithOutputLevel sets default output verbosity.
func WithOutputLevel(level OutputLevel) Option {
	return func(e *Engine) { e.outputLevel = level }
}

// WithOutputWriter overrides the engine output writer.
func WithOutputWriter(w io.Writer) Option {
	return func(e *Engine) {
		if w != nil {
			e.outputWriter = w
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHistoryRecorder persists every invocation that reaches a terminal status.
func WithHistoryRecorder(rec HistoryRecorder) Option {
	return func(e *Engine) { e.recorder = rec }
}

// WithCommands registers definitions at construction time. Registration
// errors panic, since they indicate a programming mistake in static wiring.
func WithCommands(defs ...*CommandDefinition) Option {
	return func(e *Engine) {
		for _, def := range defs {
			if err := e.registry.Register(def); err != nil {
				panic(err)
			}
		}
	}
}

// NewEngine constructs an Engine with the built-in commands registered.
func NewEngine(options ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		registry:     NewRegistry(),
		parser:       NewParser(),
		history:      NewHistory(),
		outputWriter: os.Stdout,
		outputLevel:  OutputNormal,
		helpHeader:   "Available commands:",
		promptBase:   "> ",
		logger:       discardLogger(),
		ctx:          ctx,
		cancel:       cancel,
	}
	engine.middleware = []Middleware{RecoveryMiddleware}
	engine.registerBuiltins()
	for _, opt := range options {
		opt(engine)
	}
	engine.tasks = NewTaskManager(NewOutputChannel(engine.outputWriter), engine.logger)
	return engine
}

// Registry exposes the command registry.
func (e *Engine) Registry() *Registry { return e.registry }

// History exposes tracked invocations.
func (e *Engine) History() *History { return e.history }

// Tasks exposes the task manager.
func (e *Engine) Tasks() *TaskManager { return e.tasks }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// RegisterCommand adds a definition to the registry.
func (e *Engine) RegisterCommand(def *CommandDefinition) error {
	if err := e.registry.Register(def); err != nil {
		return err
	}
	e.logger.Debug("command registered", slog.String("command", def.Name))
	return nil
}

// SetPrompt updates the prompt string.
func (e *Engine) SetPrompt(prompt string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prompt != "" {
		e.promptBase = prompt
	}
}

// Prompt returns the prompt string.
func (e *Engine) Prompt() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.promptBase
}

// SetOutputLevel updates output verbosity for later mounts.
func (e *Engine) SetOutputLevel(level OutputLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputLevel = level
}

// SetOutputWriter swaps the writer for command output, returning the previous writer.
func (e *Engine) SetOutputWriter(w io.Writer) io.Writer {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.outputWriter
	if w == nil {
		e.outputWriter = os.Stdout
	} else {
		e.outputWriter = w
	}
	e.tasks.SetOutputChannel(NewOutputChannel(e.outputWriter))
	return prev
}

// Submit handles one input line. Parse and validation failures are returned
// and no invocation is created. An empty line returns (nil, nil).
func (e *Engine) Submit(line string) (*Invocation, error) {
	line = strings.TrimSpace(line)
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return nil, nil
	}

	def, err := e.registry.Lookup(tokens[0])
	if err != nil {
		return nil, err
	}

	if wantsHelp(def, tokens[1:]) {
		renderer := def.HelpRenderer
		if renderer == nil {
			renderer = RendererFunc(e.renderCommandHelp)
		}
		cmd := Command{Input: line, Definition: def, Args: newParsedArguments()}
		return e.start(cmd, renderer), nil
	}

	args, err := e.parser.Parse(def, tokens[1:])
	if err != nil {
		e.logger.Debug("command rejected", slog.String("command", def.Name), slog.String("error", err.Error()))
		return nil, err
	}
	cmd := Command{Input: line, Definition: def, Args: args}
	if err := Validate(cmd); err != nil {
		e.logger.Debug("command failed validation", slog.String("command", def.Name), slog.String("error", err.Error()))
		return nil, err
	}
	return e.start(cmd, def.Renderer), nil
}

// Exec submits line and waits for the invocation to resolve.
func (e *Engine) Exec(ctx context.Context, line string) (*Invocation, error) {
	inv, err := e.Submit(line)
	if err != nil || inv == nil {
		return inv, err
	}
	// The invocation may already be evicted (clear evicts itself).
	select {
	case <-inv.Session.Done():
		return inv, nil
	case <-ctx.Done():
		return inv, ctx.Err()
	}
}

// Wait blocks until the invocation reaches a terminal status or ctx ends.
func (e *Engine) Wait(ctx context.Context, id string) (Status, error) {
	inv, ok := e.history.Get(id)
	if !ok {
		return "", ErrInvocationNotFound
	}
	select {
	case <-inv.Session.Done():
		return inv.Session.Status(), nil
	case <-ctx.Done():
		return inv.Session.Status(), ctx.Err()
	}
}

func wantsHelp(def *CommandDefinition, tokens []string) bool {
	if _, declared := def.Arg("help"); declared {
		return false
	}
	for _, token := range tokens {
		if token == "--help" {
			return true
		}
	}
	return false
}

func (e *Engine) start(cmd Command, renderer Renderer) *Invocation {
	ctx, cancel := context.WithCancel(e.ctx)
	session := NewExecutionSession()
	inv := &Invocation{
		Command:     cmd,
		Session:     session,
		SubmittedAt: time.Now(),
		renderer:    renderer,
		ctx:         ctx,
		cancel:      cancel,
	}
	session.onResolve = func(*ExecutionSession) { e.resolved(inv) }
	session.onReject = func(s *ExecutionSession, err error) {
		e.logger.Warn("status change after terminal state ignored",
			slog.String("command", cmd.Name()),
			slog.String("invocation", s.ID()),
			slog.String("error", err.Error()))
	}
	e.history.add(inv)
	e.logger.Info("command submitted", slog.String("command", cmd.Name()), slog.String("invocation", session.ID()))
	e.mount(inv)
	return inv
}

func (e *Engine) mount(inv *Invocation) {
	e.mu.RLock()
	writer, level := e.outputWriter, e.outputLevel
	e.mu.RUnlock()

	out := NewOutputChannel(writer)
	out.SetLevel(level)
	inv.Session.mount()

	props := ExecutionProps{
		Context: inv.ctx,
		Command: inv.Command,
		Session: inv.Session,
		Output:  out,
		Tasks:   e.tasks,
		Logger: e.logger.With(
			slog.String("command", inv.Command.Name()),
			slog.String("invocation", inv.ID())),
	}
	e.chain(inv.renderer)(props)
}

func (e *Engine) chain(renderer Renderer) MountFunc {
	h := MountFunc(renderer.Render)
	for i := len(e.middleware) - 1; i >= 0; i-- {
		mw := e.middleware[i]
		next := h
		h = func(props ExecutionProps) { mw(props, next) }
	}
	return h
}

func (e *Engine) resolved(inv *Invocation) {
	status := inv.Session.Status()
	e.logger.Info("command resolved",
		slog.String("command", inv.Command.Name()),
		slog.String("invocation", inv.ID()),
		slog.String("status", string(status)),
		slog.Duration("elapsed", inv.Session.ResolvedAt().Sub(inv.SubmittedAt)))
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(e.ctx, inv.Record()); err != nil {
		e.logger.Warn("failed to record invocation",
			slog.String("invocation", inv.ID()),
			slog.String("error", err.Error()))
	}
}

// Unmount detaches the renderer of an invocation. Its session, and any task it
// started, keep running.
func (e *Engine) Unmount(id string) error {
	inv, ok := e.history.Get(id)
	if !ok {
		return ErrInvocationNotFound
	}
	inv.Session.unmount()
	return nil
}

// Mount renders an unmounted invocation again with its preserved session.
// Mounting an already mounted invocation is a no-op.
func (e *Engine) Mount(id string) error {
	inv, ok := e.history.Get(id)
	if !ok {
		return ErrInvocationNotFound
	}
	if inv.Session.Mounted() {
		return nil
	}
	e.mount(inv)
	return nil
}

// Evict drops one invocation record and cancels its context.
func (e *Engine) Evict(id string) bool {
	inv, ok := e.history.Get(id)
	if ok {
		inv.Session.unmount()
	}
	return e.history.Evict(id)
}

// Clear evicts every invocation record.
func (e *Engine) Clear() int {
	for _, inv := range e.history.List() {
		inv.Session.unmount()
	}
	return e.history.Clear()
}

// Close cancels every invocation context.
func (e *Engine) Close() { e.cancel() }

// Run starts the interactive loop.
func (e *Engine) Run(rl *readline.Instance) error {
	if rl == nil {
		return errors.New("readline instance is required")
	}
	for {
		e.refreshAutocomplete(rl)
		rl.SetPrompt(e.Prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if exitRequested(line) {
			fmt.Fprintln(e.outputWriter, "Shutting down.")
			return nil
		}
		if err := rl.SaveHistory(line); err != nil {
			e.logger.Warn("failed to save readline history", slog.String("error", err.Error()))
		}
		if _, err := e.Submit(line); err != nil {
			fmt.Fprintf(e.outputWriter, "Error: %v\n", err)
		}
	}
}

func (e *Engine) refreshAutocomplete(rl *readline.Instance) {
	var items []readline.PrefixCompleterInterface
	for _, def := range e.registry.Commands(false) {
		var flags []readline.PrefixCompleterInterface
		for _, arg := range def.Args {
			flags = append(flags, readline.PcItem("--"+arg.Name))
		}
		items = append(items, readline.PcItem(def.Name, flags...))
	}
	rl.Config.AutoComplete = readline.NewPrefixCompleter(items...)
}

func exitRequested(line string) bool {
	switch line {
	case "exit", "quit", "q":
		return true
	default:
		return false
	}
}

// RecoveryMiddleware turns a renderer panic into an error status.
func RecoveryMiddleware(props ExecutionProps, next MountFunc) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("command %s panicked: %v", props.Command.Name(), r)
			props.Output.Error(msg)
			props.Logger.Error("renderer panicked", slog.Any("panic", r))
			if !props.Status().Terminal() {
				_ = props.SetStatus(StatusError)
			}
		}
	}()
	next(props)
}

// TimingMiddleware logs how long mounting a renderer took.
func TimingMiddleware(props ExecutionProps, next MountFunc) {
	start := time.Now()
	next(props)
	props.Logger.Debug("renderer mounted",
		slog.Duration("took", time.Since(start).Truncate(time.Microsecond)),
		slog.Int("mounts", props.Session.Mounts()))
}
