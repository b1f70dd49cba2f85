// Package authz gates console commands behind a license tier and a set of
// administrator capabilities. The outcome of the first successful check is
// cached for the lifetime of the Authorizer.
package authz

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	console "github.com/network-plane/planeconsole"
)

// Tier is a license level. Higher values include the lower ones.
type Tier int

const (
	TierBasic Tier = iota
	TierStandard
	TierGold
	TierPlatinum
	TierEnterprise
	TierTrial
)

var tierNames = map[Tier]string{
	TierBasic:      "basic",
	TierStandard:   "standard",
	TierGold:       "gold",
	TierPlatinum:   "platinum",
	TierEnterprise: "enterprise",
	TierTrial:      "trial",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a license type name to a Tier.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for tier, name := range tierNames {
		if name == s {
			return tier, nil
		}
	}
	return TierBasic, fmt.Errorf("unknown license type %q", s)
}

// License is the license reported by the backend.
type License struct {
	Type   string
	Status string
}

// HasAtLeast reports whether the license is active and at or above minimum.
func (l License) HasAtLeast(minimum Tier) bool {
	if !strings.EqualFold(l.Status, "active") {
		return false
	}
	tier, err := ParseTier(l.Type)
	if err != nil {
		return false
	}
	return tier >= minimum
}

// LicenseSource fetches the current license.
type LicenseSource interface {
	License(ctx context.Context) (License, error)
}

// CapabilitySource fetches the capabilities of the current user.
type CapabilitySource interface {
	Capabilities(ctx context.Context) (map[string]bool, error)
}

// Validation is the outcome of an authorization check. Message is empty when
// Valid is true.
type Validation struct {
	Valid   bool
	Message string
}

// Policy names a feature, its minimum license and the capabilities that make
// a user its administrator.
type Policy struct {
	Feature           string
	MinimumTier       Tier
	AdminCapabilities []string
}

// MachineLearning is the policy guarding machine-learning backed commands.
func MachineLearning() Policy {
	return Policy{
		Feature:     "machine learning",
		MinimumTier: TierPlatinum,
		AdminCapabilities: []string{
			"canCreateJob",
			"canDeleteJob",
			"canOpenJob",
			"canCloseJob",
			"canUpdateJob",
			"canForecastJob",
			"canCreateDatafeed",
			"canDeleteDatafeed",
			"canStartStopDatafeed",
			"canUpdateDatafeed",
			"canPreviewDatafeed",
			"canCreateCalendar",
			"canDeleteCalendar",
			"canCreateFilter",
			"canDeleteFilter",
		},
	}
}

// Guard selects the command definitions an Authorizer applies to.
type Guard func(def *console.CommandDefinition) bool

// ForCommands guards the named commands only.
func ForCommands(names ...string) Guard {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return func(def *console.CommandDefinition) bool {
		return def != nil && set[def.Name]
	}
}

// Authorizer validates a Policy against a license and capability source.
type Authorizer struct {
	policy   Policy
	licenses LicenseSource
	caps     CapabilitySource
	guard    Guard

	group  singleflight.Group
	mu     sync.Mutex
	cached *Validation
}

// New builds an Authorizer. A nil caps means the feature's backing plugin is
// not installed. A nil guard applies the policy to every command.
func New(policy Policy, licenses LicenseSource, caps CapabilitySource, guard Guard) *Authorizer {
	if guard == nil {
		guard = func(*console.CommandDefinition) bool { return true }
	}
	return &Authorizer{policy: policy, licenses: licenses, caps: caps, guard: guard}
}

// Guards reports whether def is subject to the policy.
func (a *Authorizer) Guards(def *console.CommandDefinition) bool { return a.guard(def) }

// ValidateCommand validates def, which is always valid when not guarded.
func (a *Authorizer) ValidateCommand(ctx context.Context, def *console.CommandDefinition) (Validation, error) {
	if !a.guard(def) {
		return Validation{Valid: true}, nil
	}
	return a.Validate(ctx)
}

// Validate runs the policy checks. Concurrent callers share one computation,
// and the first successful result is reused by later calls.
func (a *Authorizer) Validate(ctx context.Context) (Validation, error) {
	a.mu.Lock()
	if a.cached != nil {
		v := *a.cached
		a.mu.Unlock()
		return v, nil
	}
	a.mu.Unlock()

	res, err, _ := a.group.Do("validate", func() (any, error) {
		a.mu.Lock()
		if a.cached != nil {
			v := *a.cached
			a.mu.Unlock()
			return v, nil
		}
		a.mu.Unlock()

		v, err := a.compute(ctx)
		if err != nil {
			return Validation{}, err
		}
		a.mu.Lock()
		a.cached = &v
		a.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return Validation{}, err
	}
	return res.(Validation), nil
}

// Reset drops the cached validation.
func (a *Authorizer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
}

func (a *Authorizer) compute(ctx context.Context) (Validation, error) {
	feature := a.policy.Feature
	if a.caps == nil {
		return Validation{Message: fmt.Sprintf("The %s plugin is not available. Try enabling the plugin.", feature)}, nil
	}

	license, err := a.licenses.License(ctx)
	if err != nil {
		return Validation{}, fmt.Errorf("fetch license: %w", err)
	}
	if !license.HasAtLeast(a.policy.MinimumTier) {
		return Validation{Message: fmt.Sprintf("Your license does not support %s. Please upgrade your license.", feature)}, nil
	}

	caps, err := a.caps.Capabilities(ctx)
	if err != nil {
		return Validation{}, fmt.Errorf("fetch capabilities: %w", err)
	}
	for _, name := range a.policy.AdminCapabilities {
		if !caps[name] {
			return Validation{Message: fmt.Sprintf("The current user is not a %s administrator.", feature)}, nil
		}
	}
	return Validation{Valid: true}, nil
}
