package models

// HealthStatus is the body served by the liveness endpoint.
type HealthStatus struct {
	Status   string `json:"status"`
	DeviceID string `json:"deviceId"`
}
