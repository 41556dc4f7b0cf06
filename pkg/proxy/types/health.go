package types

// HealthResponse is the body of the liveness probe.
type HealthResponse struct {
	Status    string      `json:"status"`
	Proxy     HealthProxy `json:"proxy"`
	Timestamp string      `json:"timestamp"`
}

// HealthProxy describes the active forwarding route.
type HealthProxy struct {
	Target    string `json:"target"`
	Listening int    `json:"listening"`
}
