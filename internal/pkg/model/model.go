package model

import "time"

// OutputState is the observer-facing copy of one output cell after a write.
type OutputState struct {
	DeviceID  string    `json:"device_id"`
	Alias     string    `json:"alias"`
	Output    int       `json:"output"` // 1-based, as shown to users
	IsOn      bool      `json:"is_on"`
	Source    Source    `json:"source"`
	Bitmask   *uint64   `json:"bitmask,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceView is a consistent snapshot of a device for readers.
type DeviceView struct {
	DeviceID string `json:"device_id"`
	Alias    string `json:"alias"`
	Outputs  []bool `json:"outputs"`
}
