package endpoint

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	console "github.com/network-plane/planeconsole"
	"github.com/network-plane/planeconsole/kibana"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type fakeClient struct {
	mu       sync.Mutex
	sent     []kibana.ActionRequest
	commands []string
	polls    int
	complete bool
	success  bool
	errs     []string
	sendErr  error
	host     kibana.HostInfo
}

func (c *fakeClient) send(command string, req kibana.ActionRequest) (kibana.ActionDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return kibana.ActionDetails{}, c.sendErr
	}
	c.sent = append(c.sent, req)
	c.commands = append(c.commands, command)
	return kibana.ActionDetails{ID: "action-1", Command: command}, nil
}

func (c *fakeClient) KillProcess(_ context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error) {
	return c.send("kill-process", req)
}

func (c *fakeClient) SuspendProcess(_ context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error) {
	return c.send("suspend-process", req)
}

func (c *fakeClient) Isolate(_ context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error) {
	return c.send("isolate", req)
}

func (c *fakeClient) Release(_ context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error) {
	return c.send("unisolate", req)
}

func (c *fakeClient) ActionDetails(_ context.Context, actionID string) (kibana.ActionDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	return kibana.ActionDetails{
		ID:            actionID,
		IsCompleted:   c.complete,
		WasSuccessful: c.success,
		Errors:        c.errs,
	}, nil
}

func (c *fakeClient) EndpointMetadata(_ context.Context, agentID string) (kibana.HostInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if agentID != c.host.Metadata.Agent.ID {
		return kibana.HostInfo{}, &kibana.HTTPError{StatusCode: 404, Method: "GET", Path: "/api/endpoint/metadata/" + agentID}
	}
	return c.host, nil
}

func (c *fakeClient) setOutcome(complete, success bool, errs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete, c.success, c.errs = complete, success, errs
}

func (c *fakeClient) counts() (sent, polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent), c.polls
}

var testMeta = Meta{EndpointID: "endpoint-1", Hostname: "web-01"}

func newEngine(t *testing.T, client *fakeClient, meta Meta) (*console.Engine, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	engine := console.NewEngine(
		console.WithOutputWriter(out),
		console.WithCommands(Commands(client, meta, Options{PollInterval: 5 * time.Millisecond})...),
	)
	t.Cleanup(engine.Close)
	return engine, out
}

func waitStatus(t *testing.T, engine *console.Engine, inv *console.Invocation) console.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := engine.Wait(ctx, inv.ID())
	require.NoError(t, err)
	return status
}

func TestKillProcessCompletes(t *testing.T) {
	client := &fakeClient{}
	client.setOutcome(true, true)
	engine, out := newEngine(t, client, testMeta)

	inv, err := engine.Submit(`kill-process --pid 42 --comment "runaway"`)
	require.NoError(t, err)
	assert.Equal(t, console.StatusSuccess, waitStatus(t, engine, inv))

	require.Len(t, client.sent, 1)
	assert.Equal(t, kibana.ActionRequest{
		EndpointIDs: []string{"endpoint-1"},
		Comment:     "runaway",
		Parameters:  &kibana.ProcessParameters{PID: 42},
	}, client.sent[0])
	assert.Equal(t, "action-1", inv.Session.Store().String(storeActionID))
	assert.Contains(t, out.String(), "Sending kill-process request to web-01")
	assert.Contains(t, out.String(), "kill-process action action-1 completed successfully")
}

func TestSuspendProcessByEntityID(t *testing.T) {
	client := &fakeClient{}
	client.setOutcome(true, true)
	engine, _ := newEngine(t, client, testMeta)

	inv, err := engine.Submit("suspend-process --entityId abc123")
	require.NoError(t, err)
	assert.Equal(t, console.StatusSuccess, waitStatus(t, engine, inv))
	assert.Equal(t, []string{"suspend-process"}, client.commands)
	assert.Equal(t, &kibana.ProcessParameters{EntityID: "abc123"}, client.sent[0].Parameters)
}

func TestProcessCommandRejections(t *testing.T) {
	engine, _ := newEngine(t, &fakeClient{}, testMeta)

	tests := []struct {
		line   string
		target error
	}{
		{"kill-process", console.ErrNoArguments},
		{"kill-process --comment hi", console.ErrValidationFailed},
		{"kill-process --pid 1 --entityId abc", console.ErrExclusiveConflict},
		{"kill-process --pid abc", console.ErrInvalidValue},
		{"kill-process --pid 0", console.ErrValidationFailed},
		{"kill-process --pid -3", console.ErrValidationFailed},
		{`suspend-process --entityId ""`, console.ErrValidationFailed},
		{`isolate --comment " "`, console.ErrValidationFailed},
		{"isolate --pid 3", console.ErrUnknownArgument},
	}
	for _, tc := range tests {
		_, err := engine.Submit(tc.line)
		assert.ErrorIs(t, err, tc.target, tc.line)
	}
	assert.Zero(t, engine.History().Len())
}

func TestCommandDefinitionsHelp(t *testing.T) {
	engine, out := newEngine(t, &fakeClient{}, testMeta)

	_, err := engine.Exec(context.Background(), "kill-process --help")
	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, "kill-process [--comment <string>] [--pid <int> | --entityId <string>]")
	assert.Contains(t, text, "Enter a pid or an entity id to execute")
	assert.Contains(t, text, "At least one argument must be used.")

	def, err := engine.Registry().Lookup("isolate")
	require.NoError(t, err)
	assert.Equal(t, MetaKind, def.Meta.MetaKind())
	assert.Equal(t, testMeta, def.Meta)
}

func TestRemountResumesPollingWithoutResending(t *testing.T) {
	client := &fakeClient{}
	engine, _ := newEngine(t, client, testMeta)

	inv, err := engine.Submit("isolate")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return inv.Session.Store().String(storeActionID) == "action-1"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, engine.Unmount(inv.ID()))
	require.Eventually(t, func() bool {
		running, _ := inv.Session.Store().Get(storePolling)
		return running == false
	}, 2*time.Second, 5*time.Millisecond, "polling stops while unmounted")
	assert.Equal(t, console.StatusPending, inv.Session.Status())

	client.setOutcome(true, true)
	require.NoError(t, engine.Mount(inv.ID()))
	assert.Equal(t, console.StatusSuccess, waitStatus(t, engine, inv))

	sent, polls := client.counts()
	assert.Equal(t, 1, sent)
	assert.Positive(t, polls)
	assert.Equal(t, 2, inv.Session.Mounts())
}

func TestPollerKeepsClaimWhenRemountedBeforeRelease(t *testing.T) {
	hold := &console.CommandDefinition{
		Name:     "hold",
		Renderer: console.RendererFunc(func(console.ExecutionProps) {}),
	}
	engine := console.NewEngine(console.WithOutputWriter(&syncBuffer{}), console.WithCommands(hold))
	t.Cleanup(engine.Close)

	inv, err := engine.Submit("hold")
	require.NoError(t, err)
	require.True(t, claimPolling(inv.Session))
	assert.False(t, claimPolling(inv.Session), "a second mount waits on the running poller")

	run := &actionRun{session: inv.Session, held: true}
	assert.True(t, run.yield(), "session mounted again before the poller let go")
	polling, _ := inv.Session.Store().Get(storePolling)
	assert.Equal(t, true, polling)

	require.NoError(t, engine.Unmount(inv.ID()))
	assert.False(t, run.yield())
	polling, _ = inv.Session.Store().Get(storePolling)
	assert.Equal(t, false, polling)

	run.release()
	assert.True(t, claimPolling(inv.Session), "the next mount can claim polling")
}

func TestActionFailureSetsError(t *testing.T) {
	client := &fakeClient{}
	client.setOutcome(true, false, "process not found")
	engine, out := newEngine(t, client, testMeta)

	inv, err := engine.Submit("kill-process --pid 999")
	require.NoError(t, err)
	assert.Equal(t, console.StatusError, waitStatus(t, engine, inv))
	assert.Contains(t, strings.Split(out.String(), "\n"), "ERROR: kill-process action action-1 failed: process not found")
}

func TestSendFailureSetsError(t *testing.T) {
	client := &fakeClient{sendErr: errors.New("connection refused")}
	engine, out := newEngine(t, client, testMeta)

	inv, err := engine.Submit("release")
	require.NoError(t, err)
	assert.Equal(t, console.StatusError, waitStatus(t, engine, inv))
	assert.Contains(t, out.String(), "release request failed: connection refused")
	assert.Empty(t, inv.Session.Store().String(storeActionID))
}

func TestStatusCommand(t *testing.T) {
	client := &fakeClient{}
	client.host.Metadata.Agent.ID = "endpoint-1"
	client.host.Metadata.Agent.Version = "8.4.0"
	client.host.Metadata.Host.Hostname = "web-01"
	client.host.Metadata.Host.OS.Name = "Linux"
	client.host.HostStatus = "healthy"
	engine, out := newEngine(t, client, testMeta)

	inv, err := engine.Submit("status")
	require.NoError(t, err)
	assert.Equal(t, console.StatusSuccess, waitStatus(t, engine, inv))
	assert.Contains(t, out.String(), "web-01")
	assert.Contains(t, out.String(), "healthy")
}

func TestCommandsWithoutEndpointFail(t *testing.T) {
	engine, out := newEngine(t, &fakeClient{}, Meta{})

	inv, err := engine.Submit("isolate")
	require.NoError(t, err)
	assert.Equal(t, console.StatusError, waitStatus(t, engine, inv))
	assert.Contains(t, out.String(), "isolate: no endpoint selected")

	inv, err = engine.Submit("status")
	require.NoError(t, err)
	assert.Equal(t, console.StatusError, waitStatus(t, engine, inv))
}
