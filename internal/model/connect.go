package model

type BeginAuthorizationRequest struct{}

type BeginAuthorizationResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

type CompleteAuthorizationRequest struct {
	State            string `json:"state"`
	Code             string `json:"code"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type CompleteAuthorizationResponse struct {
	WorkspaceID   string `json:"workspace_id,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Connected     bool   `json:"connected"`
	Status        string `json:"status,omitempty"`
	WorkspaceID   string `json:"workspace_id,omitempty"`
	WorkspaceName string `json:"workspace_name,omitempty"`
	Scope         string `json:"scope,omitempty"`
	ConnectedAt   string `json:"connected_at,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	RefreshCount  uint64 `json:"refresh_count,omitempty"`
	LastUsedAt    string `json:"last_used_at,omitempty"`
}

type DisconnectRequest struct{}

type DisconnectResponse struct{}
