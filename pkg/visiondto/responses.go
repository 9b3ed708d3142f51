package visiondto

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Backend any    `json:"backend"`
}

type AutoplayResponse struct {
	Running bool `json:"running"`
	DelayMs int  `json:"delayMs"`
}

type CaptureResponse struct {
	Running       bool   `json:"running"`
	Captures      uint64 `json:"captures"`
	Errors        uint64 `json:"errors"`
	LastCaptureMs int64  `json:"lastCaptureMs"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}
