package kibana

import "time"

// ProcessParameters identifies the target of a process response action.
// Exactly one of PID and EntityID is set.
type ProcessParameters struct {
	PID      int    `json:"pid,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// ActionRequest is the body of every endpoint response action.
type ActionRequest struct {
	EndpointIDs []string           `json:"endpoint_ids"`
	Comment     string             `json:"comment,omitempty"`
	Parameters  *ProcessParameters `json:"parameters,omitempty"`
}

// ActionDetails is the state of a response action.
type ActionDetails struct {
	ID            string     `json:"id"`
	Command       string     `json:"command"`
	Agents        []string   `json:"agents"`
	IsCompleted   bool       `json:"isCompleted"`
	WasSuccessful bool       `json:"wasSuccessful"`
	IsExpired     bool       `json:"isExpired"`
	Errors        []string   `json:"errors,omitempty"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedBy     string     `json:"createdBy,omitempty"`
	Comment       string     `json:"comment,omitempty"`
}

type actionResponse struct {
	Data ActionDetails `json:"data"`
}

// HostInfo is the endpoint metadata returned for one agent.
type HostInfo struct {
	Metadata    HostMetadata `json:"metadata"`
	HostStatus  string       `json:"host_status"`
	LastCheckin *time.Time   `json:"last_checkin,omitempty"`
}

// HostMetadata is the subset of endpoint metadata the console shows.
type HostMetadata struct {
	Agent struct {
		ID      string `json:"id"`
		Version string `json:"version"`
	} `json:"agent"`
	Host struct {
		Hostname string   `json:"hostname"`
		Name     string   `json:"name"`
		IP       []string `json:"ip,omitempty"`
		OS       struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"os"`
	} `json:"host"`
	Endpoint struct {
		Status string `json:"status"`
		Policy struct {
			Applied struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"applied"`
		} `json:"policy"`
	} `json:"Endpoint"`
}

// LicenseInfo is the active license reported by the licensing API.
type LicenseInfo struct {
	UID    string `json:"uid"`
	Type   string `json:"type"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

type licenseResponse struct {
	License LicenseInfo `json:"license"`
}

// MLCapabilities reports what the current user may do with machine learning.
type MLCapabilities struct {
	Capabilities             map[string]bool `json:"capabilities"`
	IsPlatinumOrTrialLicense bool            `json:"isPlatinumOrTrialLicense"`
	MLFeatureEnabledInSpace  bool            `json:"mlFeatureEnabledInSpace"`
	UpgradeInProgress        bool            `json:"upgradeInProgress"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}
