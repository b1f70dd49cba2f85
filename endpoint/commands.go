// Package endpoint defines the endpoint response console commands: host
// isolation, process termination and suspension, and endpoint status.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	console "github.com/network-plane/planeconsole"
	"github.com/network-plane/planeconsole/kibana"
)

// MetaKind identifies Meta on a command definition.
const MetaKind = "endpoint"

// Meta is attached to every command of the family.
type Meta struct {
	EndpointID string
	Hostname   string
}

// MetaKind implements console.Meta.
func (Meta) MetaKind() string { return MetaKind }

// Client is the subset of the Kibana API used by the commands.
type Client interface {
	KillProcess(ctx context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error)
	SuspendProcess(ctx context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error)
	Isolate(ctx context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error)
	Release(ctx context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error)
	ActionDetails(ctx context.Context, actionID string) (kibana.ActionDetails, error)
	EndpointMetadata(ctx context.Context, agentID string) (kibana.HostInfo, error)
}

// Options tune action polling.
type Options struct {
	// PollInterval is the delay between action status checks.
	PollInterval time.Duration
	// Timeout bounds one polling run. Zero means no limit.
	Timeout time.Duration
}

const defaultPollInterval = 2 * time.Second

// Commands returns the command definitions for one endpoint.
func Commands(client Client, meta Meta, opts Options) []*console.CommandDefinition {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	f := &family{client: client, opts: opts}

	return []*console.CommandDefinition{
		{
			Name:         "isolate",
			About:        "Isolate the host",
			Args:         []console.ArgDefinition{commentArg()},
			ExampleUsage: `isolate --comment "isolate this host"`,
			Renderer:     f.actionRenderer("isolate", client.Isolate, noParameters),
			Meta:         meta,
		},
		{
			Name:         "release",
			About:        "Release the host",
			Args:         []console.ArgDefinition{commentArg()},
			ExampleUsage: `release --comment "release this host"`,
			Renderer:     f.actionRenderer("release", client.Release, noParameters),
			Meta:         meta,
		},
		{
			Name:               "kill-process",
			About:              "Kill/terminate a process",
			Args:               processArgs(),
			MustHaveArgs:       true,
			Validate:           requireProcess,
			ExampleUsage:       `kill-process --pid 123 --comment "kill this process"`,
			ExampleInstruction: "Enter a pid or an entity id to execute",
			Renderer:           f.actionRenderer("kill-process", client.KillProcess, processParameters),
			Meta:               meta,
		},
		{
			Name:               "suspend-process",
			About:              "Temporarily suspend a process",
			Args:               processArgs(),
			MustHaveArgs:       true,
			Validate:           requireProcess,
			ExampleUsage:       `suspend-process --pid 123 --comment "suspend this process"`,
			ExampleInstruction: "Enter a pid or an entity id to execute",
			Renderer:           f.actionRenderer("suspend-process", client.SuspendProcess, processParameters),
			Meta:               meta,
		},
		{
			Name:     "status",
			About:    "Show host status",
			Renderer: console.AsyncRenderer(f.status, console.TaskOptions{Timeout: opts.Timeout}),
			Meta:     meta,
		},
	}
}

type family struct {
	client Client
	opts   Options
}

func commentArg() console.ArgDefinition {
	return console.ArgDefinition{
		Name:  "comment",
		About: "A comment to go along with the action",
		Validate: func(values []any) error {
			if strings.TrimSpace(fmt.Sprint(values[0])) == "" {
				return errors.New("comment cannot be empty")
			}
			return nil
		},
	}
}

func processArgs() []console.ArgDefinition {
	return []console.ArgDefinition{
		commentArg(),
		{
			Name:             "pid",
			About:            "A PID representing the process to act on",
			Type:             console.ArgTypeInt,
			ExclusiveOrGroup: "process",
			Validate:         positiveInt,
		},
		{
			Name:             "entityId",
			About:            "An entity id representing the process to act on",
			ExclusiveOrGroup: "process",
			Validate: func(values []any) error {
				if strings.TrimSpace(fmt.Sprint(values[0])) == "" {
					return errors.New("entityId cannot be empty")
				}
				return nil
			},
		},
	}
}

func requireProcess(cmd console.Command) error {
	if !cmd.Args.Has("pid") && !cmd.Args.Has("entityId") {
		return errors.New("either --pid or --entityId is required")
	}
	return nil
}

func positiveInt(values []any) error {
	n, ok := values[0].(int)
	if !ok || n <= 0 {
		return errors.New("pid must be a positive integer")
	}
	return nil
}

func noParameters(console.Command) *kibana.ProcessParameters { return nil }

func processParameters(cmd console.Command) *kibana.ProcessParameters {
	if cmd.Args.Has("pid") {
		return &kibana.ProcessParameters{PID: cmd.Args.Int("pid")}
	}
	return &kibana.ProcessParameters{EntityID: cmd.Args.String("entityId")}
}

func metaOf(cmd console.Command) (Meta, error) {
	if cmd.Definition == nil {
		return Meta{}, errors.New("command has no definition")
	}
	meta, ok := cmd.Definition.Meta.(Meta)
	if !ok || meta.EndpointID == "" {
		return Meta{}, fmt.Errorf("%s: no endpoint selected", cmd.Name())
	}
	return meta, nil
}

func target(meta Meta) string {
	if meta.Hostname != "" {
		return meta.Hostname
	}
	return meta.EndpointID
}
