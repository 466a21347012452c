package model

type RunOperationRequest struct {
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments"`
}

type RunOperationResponse struct {
	Operation string `json:"operation"`
	Result    any    `json:"result"`
}
