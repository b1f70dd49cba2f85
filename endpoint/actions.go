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

// Session store keys. The action ID outlives remounts so a remounted
// renderer polls the existing action rather than sending a new one.
const (
	storeActionID = "actionId"
	storePolling  = "polling"
	storeDetails  = "details"
)

type sendFunc func(ctx context.Context, req kibana.ActionRequest) (kibana.ActionDetails, error)

type paramsFunc func(cmd console.Command) *kibana.ProcessParameters

func (f *family) actionRenderer(name string, send sendFunc, params paramsFunc) console.Renderer {
	return console.RendererFunc(func(props console.ExecutionProps) {
		if props.Status().Terminal() {
			if v, ok := props.Store().Get(storeDetails); ok {
				report(props.Output, name, v.(kibana.ActionDetails))
			}
			return
		}

		meta, err := metaOf(props.Command)
		if err != nil {
			props.Output.Error(err.Error())
			_ = props.SetStatus(console.StatusError)
			return
		}

		claimed := claimPolling(props.Session)
		actionID := props.Store().String(storeActionID)
		switch {
		case !claimed:
			props.Output.Info(fmt.Sprintf("Waiting for %s on %s", name, target(meta)))
			return
		case actionID == "":
			props.Output.Info(fmt.Sprintf("Sending %s request to %s", name, target(meta)))
		default:
			props.Output.Info(fmt.Sprintf("Resuming %s action %s", name, actionID))
		}

		session := props.Session
		out := props.Output
		req := kibana.ActionRequest{
			EndpointIDs: []string{meta.EndpointID},
			Comment:     props.Command.Args.String("comment"),
			Parameters:  params(props.Command),
		}
		props.Go(name, func(ctx context.Context, _ console.OutputChannel) error {
			run := &actionRun{family: f, session: session, out: out, name: name, held: true}
			defer run.release()
			return run.execute(ctx, actionID, send, req)
		}, console.TaskOptions{
			Timeout:  f.opts.Timeout,
			Metadata: map[string]any{"endpoint": meta.EndpointID},
		})
	})
}

// claimPolling marks the session as polled and reports whether the caller
// won the claim.
func claimPolling(s *console.ExecutionSession) bool {
	claimed := false
	s.SetStore(func(prev console.Store) console.Store {
		v, _ := prev.Get(storePolling)
		if running, _ := v.(bool); running {
			return prev
		}
		claimed = true
		return prev.With(storePolling, true)
	})
	return claimed
}

type actionRun struct {
	*family
	session *console.ExecutionSession
	out     console.OutputChannel
	name    string
	held    bool
}

func (r *actionRun) release() {
	if r.held {
		r.held = false
		r.session.SetStore(console.Set(storePolling, false))
	}
}

// yield gives up the polling claim once the session is unmounted. A mount
// landing before the claim is released finds polling held and does not
// spawn, so the claim is taken back when the session is mounted again.
func (r *actionRun) yield() bool {
	r.release()
	if !r.session.Mounted() {
		return false
	}
	r.held = claimPolling(r.session)
	return r.held
}

func (r *actionRun) execute(ctx context.Context, actionID string, send sendFunc, req kibana.ActionRequest) error {
	if actionID == "" {
		details, err := send(ctx, req)
		if err != nil {
			return r.fail(fmt.Errorf("%s request failed: %w", r.name, err))
		}
		actionID = details.ID
		r.session.SetStore(console.Set(storeActionID, actionID))
		if details.IsCompleted {
			return r.finish(details)
		}
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return r.fail(fmt.Errorf("timed out waiting for %s action %s", r.name, actionID))
			}
			return ctx.Err()
		case <-ticker.C:
		}

		// Polling stops while unmounted and resumes on the next mount.
		if !r.session.Mounted() && !r.yield() {
			return nil
		}
		details, err := r.client.ActionDetails(ctx, actionID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			return r.fail(fmt.Errorf("failed to check %s action %s: %w", r.name, actionID, err))
		}
		if details.IsCompleted {
			return r.finish(details)
		}
	}
}

func (r *actionRun) finish(details kibana.ActionDetails) error {
	r.session.SetStore(console.Set(storeDetails, details))
	if r.session.Mounted() {
		report(r.out, r.name, details)
	}
	status := console.StatusSuccess
	if !details.WasSuccessful {
		status = console.StatusError
	}
	_ = r.session.SetStatus(status)
	return nil
}

func (r *actionRun) fail(err error) error {
	if r.session.Mounted() {
		r.out.Error(err.Error())
	}
	_ = r.session.SetStatus(console.StatusError)
	return err
}

func report(out console.OutputChannel, name string, details kibana.ActionDetails) {
	if details.WasSuccessful {
		out.Info(fmt.Sprintf("%s action %s completed successfully", name, details.ID))
		return
	}
	reason := "action failed"
	if len(details.Errors) > 0 {
		reason = strings.Join(details.Errors, "; ")
	}
	out.Error(fmt.Sprintf("%s action %s failed: %s", name, details.ID, reason))
}
