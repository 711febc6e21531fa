package models

// TelemetrySample is one synthetic garden sensor reading.
type TelemetrySample struct {
	DeviceID     string  `json:"deviceId"`
	Temperature  float64 `json:"temp"`     // °C, one decimal
	Humidity     float64 `json:"humidity"` // %, one decimal
	SoilMoisture int     `json:"soil"`     // %
	PumpOn       bool    `json:"pump"`
}
