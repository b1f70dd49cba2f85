package console

import (
	"fmt"
	"strings"
)

func (e *Engine) registerBuiltins() {
	builtins := []*CommandDefinition{
		{
			Name:     "help",
			About:    "Show the list of available commands",
			Renderer: RendererFunc(e.renderHelp),
		},
		{
			Name:     "clear",
			About:    "Clear the console history",
			Renderer: RendererFunc(e.renderClear),
		},
		{
			Name:  "history",
			About: "List commands entered in this session",
			Args: []ArgDefinition{
				{Name: "pending", Type: ArgTypeBool, About: "Only show commands still running"},
			},
			Renderer: RendererFunc(e.renderHistory),
		},
		{
			Name:     "tasks",
			About:    "List background tasks",
			Renderer: RendererFunc(e.renderTasks),
		},
	}
	for _, def := range builtins {
		if err := e.registry.Register(def); err != nil {
			panic(err)
		}
	}
}

func (e *Engine) renderHelp(props ExecutionProps) {
	e.mu.RLock()
	header := e.helpHeader
	e.mu.RUnlock()

	out := props.Output
	out.Info(header)
	for _, def := range e.registry.Commands(false) {
		out.Info(fmt.Sprintf("  %-20s %s", def.Name, def.About))
	}
	out.Info("\nType '<command> --help' for details on a command.")
	_ = props.SetStatus(StatusSuccess)
}

func (e *Engine) renderCommandHelp(props ExecutionProps) {
	def := props.Command.Definition
	out := props.Output

	out.Info(fmt.Sprintf("%s - %s", def.Name, def.About))
	out.Info("")
	out.Info("Usage:")
	out.Info("  " + FormatUsage(def))
	if def.ExampleUsage != "" {
		out.Info("")
		out.Info("Example:")
		out.Info("  " + def.ExampleUsage)
		if def.ExampleInstruction != "" {
			out.Info("  " + def.ExampleInstruction)
		}
	}
	if len(def.Args) > 0 {
		out.Info("")
		out.Info("Arguments:")
		for _, arg := range def.Args {
			var notes []string
			if arg.Required {
				notes = append(notes, "required")
			}
			if arg.AllowMultiples {
				notes = append(notes, "repeatable")
			}
			if arg.ExclusiveOrGroup != "" {
				notes = append(notes, "exclusive: "+arg.ExclusiveOrGroup)
			}
			line := fmt.Sprintf("  --%-18s %s", arg.Name, arg.About)
			if len(notes) > 0 {
				line += " (" + strings.Join(notes, ", ") + ")"
			}
			out.Info(line)
		}
	}
	if def.MustHaveArgs {
		out.Info("")
		out.Info("At least one argument must be used.")
	}
	_ = props.SetStatus(StatusSuccess)
}

func (e *Engine) renderClear(props ExecutionProps) {
	// Clearing evicts this invocation as well, so resolve first.
	_ = props.SetStatus(StatusSuccess)
	n := e.Clear()
	props.Output.Info(fmt.Sprintf("Cleared %d entries.", n))
}

func (e *Engine) renderHistory(props ExecutionProps) {
	onlyPending := props.Command.Args.Bool("pending")
	var rows [][]string
	for _, inv := range e.history.List() {
		if inv.ID() == props.Session.ID() {
			continue
		}
		if onlyPending && inv.Session.Status().Terminal() {
			continue
		}
		rows = append(rows, []string{shortID(inv.ID()), inv.Command.Name(), string(inv.Session.Status()), inv.Command.Input})
	}
	if len(rows) == 0 {
		props.Output.Info("No commands.")
	} else {
		props.Output.WriteTable([]string{"ID", "Command", "Status", "Input"}, rows)
	}
	_ = props.SetStatus(StatusSuccess)
}

func (e *Engine) renderTasks(props ExecutionProps) {
	tasks := props.Tasks.Tasks()
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		errText := ""
		if task.Error != nil {
			errText = task.Error.Error()
		}
		rows = append(rows, []string{task.ID, task.Name, shortID(task.Invocation), string(task.Status), errText})
	}
	if len(rows) == 0 {
		props.Output.Info("No tasks.")
	} else {
		props.Output.WriteTable([]string{"ID", "Name", "Invocation", "Status", "Error"}, rows)
	}
	_ = props.SetStatus(StatusSuccess)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
