package authz

import (
	"context"

	"github.com/network-plane/planeconsole/kibana"
)

// KibanaLicenses reads the license from the Kibana licensing API.
type KibanaLicenses struct {
	Client *kibana.Client
}

// License implements LicenseSource.
func (k KibanaLicenses) License(ctx context.Context) (License, error) {
	info, err := k.Client.License(ctx)
	if err != nil {
		return License{}, err
	}
	return License{Type: info.Type, Status: info.Status}, nil
}

// KibanaMLCapabilities reads the current user's machine learning capabilities.
type KibanaMLCapabilities struct {
	Client *kibana.Client
}

// Capabilities implements CapabilitySource.
func (k KibanaMLCapabilities) Capabilities(ctx context.Context) (map[string]bool, error) {
	caps, err := k.Client.MLCapabilities(ctx)
	if err != nil {
		return nil, err
	}
	return caps.Capabilities, nil
}
