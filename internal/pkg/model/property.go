package model

import "time"

// DeviceSnapshot is the last bitmask stored for a device.
type DeviceSnapshot struct {
	DeviceID  string    `json:"device_id"`
	Bitmask   uint64    `json:"bitmask"`
	Source    Source    `json:"source"`
	TimeStamp time.Time `json:"timestamp"`
}

type DeviceSnapshots []DeviceSnapshot
