package console

import (
	"context"
	"log/slog"
)

// SyncFunc is a command body that finishes before returning.
type SyncFunc func(ctx context.Context, cmd Command, out OutputChannel) error

// AsyncFunc is a command body run as a background task.
type AsyncFunc func(ctx context.Context, cmd Command, out OutputChannel) error

// SyncRenderer adapts fn into a Renderer that resolves on return. A non-nil
// error is printed and sets StatusError.
func SyncRenderer(fn SyncFunc) Renderer {
	return RendererFunc(func(props ExecutionProps) {
		if props.Status().Terminal() {
			return
		}
		if err := fn(props.Context, props.Command, props.Output); err != nil {
			props.Output.Error(err.Error())
			_ = props.SetStatus(StatusError)
			return
		}
		_ = props.SetStatus(StatusSuccess)
	})
}

const storeKeyStarted = "console.started"

// AsyncRenderer adapts fn into a Renderer that runs fn once per invocation in
// the task manager, however many times the renderer is mounted. Output from
// a task that finishes while unmounted is discarded.
func AsyncRenderer(fn AsyncFunc, opts TaskOptions) Renderer {
	return RendererFunc(func(props ExecutionProps) {
		if props.Status().Terminal() {
			return
		}
		started := false
		props.SetStore(func(prev Store) Store {
			if _, ok := prev.Get(storeKeyStarted); ok {
				started = true
				return prev
			}
			return prev.With(storeKeyStarted, true)
		})
		if started {
			props.Logger.Debug("remounted while running")
			return
		}

		session := props.Session
		out := props.Output
		props.Go(props.Command.Name(), func(ctx context.Context, _ OutputChannel) error {
			err := fn(ctx, props.Command, mountedOutput{session: session, OutputChannel: out})
			if err != nil {
				if session.Mounted() {
					out.Error(err.Error())
				}
				_ = session.SetStatus(StatusError)
				return err
			}
			_ = session.SetStatus(StatusSuccess)
			return nil
		}, opts)
	})
}

// mountedOutput drops writes while the session is unmounted.
type mountedOutput struct {
	OutputChannel
	session *ExecutionSession
}

func (m mountedOutput) Info(msg string) {
	if m.session.Mounted() {
		m.OutputChannel.Info(msg)
	}
}

func (m mountedOutput) Warn(msg string) {
	if m.session.Mounted() {
		m.OutputChannel.Warn(msg)
	}
}

func (m mountedOutput) Error(msg string) {
	if m.session.Mounted() {
		m.OutputChannel.Error(msg)
	}
}

func (m mountedOutput) Debug(msg string) {
	if m.session.Mounted() {
		m.OutputChannel.Debug(msg)
	}
}

func (m mountedOutput) WriteJSON(v any) {
	if m.session.Mounted() {
		m.OutputChannel.WriteJSON(v)
	}
}

func (m mountedOutput) WriteTable(headers []string, rows [][]string) {
	if m.session.Mounted() {
		m.OutputChannel.WriteTable(headers, rows)
	}
}

// LogStatusChanges logs status transitions that happen while a renderer mounts.
func LogStatusChanges(props ExecutionProps, next MountFunc) {
	before := props.Status()
	next(props)
	if after := props.Status(); after != before {
		props.Logger.Debug("status changed during mount",
			slog.String("from", string(before)),
			slog.String("to", string(after)))
	}
}
