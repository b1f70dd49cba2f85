package endpoint

import (
	"context"
	"fmt"
	"time"

	console "github.com/network-plane/planeconsole"
)

func (f *family) status(ctx context.Context, cmd console.Command, out console.OutputChannel) error {
	meta, err := metaOf(cmd)
	if err != nil {
		return err
	}
	info, err := f.client.EndpointMetadata(ctx, meta.EndpointID)
	if err != nil {
		return fmt.Errorf("failed to fetch status of %s: %w", target(meta), err)
	}

	host := info.Metadata.Host
	lastCheckin := "-"
	if info.LastCheckin != nil {
		lastCheckin = info.LastCheckin.UTC().Format(time.RFC3339)
	}
	out.WriteTable(
		[]string{"Agent", "Hostname", "OS", "Version", "Health", "Policy", "Last checkin"},
		[][]string{{
			info.Metadata.Agent.ID,
			host.Hostname,
			host.OS.Name,
			info.Metadata.Agent.Version,
			orDash(info.HostStatus),
			orDash(info.Metadata.Endpoint.Policy.Applied.Name),
			lastCheckin,
		}},
	)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
