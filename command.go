package console

import (
	"context"
	"log/slog"
)

// CommandDefinition describes a registered command: its argument schema, the
// renderer that executes it and optional metadata for the renderer.
// Definitions are treated as immutable once registered.
type CommandDefinition struct {
	Name               string
	About              string
	Args               []ArgDefinition
	MustHaveArgs       bool
	ExampleUsage       string
	ExampleInstruction string
	Renderer           Renderer
	HelpRenderer       Renderer
	Meta               Meta
	Validate           func(cmd Command) error
	Hidden             bool
}

// Arg returns the argument definition with the given name.
func (d *CommandDefinition) Arg(name string) (ArgDefinition, bool) {
	for _, arg := range d.Args {
		if arg.Name == name {
			return arg, true
		}
	}
	return ArgDefinition{}, false
}

// Meta is per-command metadata owned by a command family. The console never
// inspects it; renderers type-switch on the concrete value.
type Meta interface {
	MetaKind() string
}

// ArgType enumerates supported argument data types.
type ArgType string

const (
	ArgTypeString   ArgType = "string"
	ArgTypeInt      ArgType = "int"
	ArgTypeFloat    ArgType = "float"
	ArgTypeBool     ArgType = "bool"
	ArgTypeDuration ArgType = "duration"
	ArgTypeEnum     ArgType = "enum"
	ArgTypeJSON     ArgType = "json"
)

// ArgDefinition declares one named argument accepted by a command.
type ArgDefinition struct {
	Name             string
	About            string
	Type             ArgType
	EnumValues       []string
	Required         bool
	AllowMultiples   bool
	ExclusiveOrGroup string
	// Validate receives the parsed values in input order. A single-valued
	// argument always yields exactly one value.
	Validate func(values []any) error
}

// Command is one user-submitted input line matched to its definition.
type Command struct {
	Input      string
	Definition *CommandDefinition
	Args       ParsedArguments
}

// Name returns the matched definition name.
func (c Command) Name() string {
	if c.Definition == nil {
		return ""
	}
	return c.Definition.Name
}

// Status is the execution state of one invocation.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusError:
		return true
	default:
		return false
	}
}

// ExecutionProps is handed to a renderer on every mount.
type ExecutionProps struct {
	// Context is scoped to the invocation, not to the mount. It is cancelled
	// when the invocation record is evicted or the engine is closed.
	Context context.Context
	Command Command
	Session *ExecutionSession
	Output  OutputChannel
	Tasks   *TaskManager
	Logger  *slog.Logger
}

// Store returns the current store snapshot.
func (p ExecutionProps) Store() Store { return p.Session.Store() }

// SetStore replaces the store through fn applied to the latest value.
func (p ExecutionProps) SetStore(fn StoreUpdater) { p.Session.SetStore(fn) }

// Status returns the current status of the invocation.
func (p ExecutionProps) Status() Status { return p.Session.Status() }

// SetStatus moves the invocation to status.
func (p ExecutionProps) SetStatus(status Status) error { return p.Session.SetStatus(status) }

// Go spawns backend work tied to this invocation.
func (p ExecutionProps) Go(name string, fn TaskFunc, opts TaskOptions) *TaskHandle {
	opts.Invocation = p.Session.ID()
	if opts.Parent == nil {
		opts.Parent = p.Context
	}
	return p.Tasks.Spawn(name, fn, opts)
}

// Renderer executes a command and reports its outcome through the session.
// Render may be called several times for one invocation (remounts); any state
// that must survive remounting belongs in the session store.
type Renderer interface {
	Render(props ExecutionProps)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(props ExecutionProps)

// Render calls f.
func (f RendererFunc) Render(props ExecutionProps) { f(props) }
