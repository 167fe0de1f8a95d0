package cloudage

import "errors"

var (
	// ErrConfig is returned for an invalid device registration.
	ErrConfig = errors.New("invalid device configuration")
	// ErrDecode marks a status payload that carries nothing actionable.
	ErrDecode = errors.New("status payload not actionable")
	// ErrUnknownDevice is returned when a device id is not registered.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrEncoding is returned when a command frame cannot be built.
	ErrEncoding = errors.New("invalid output command")
	// ErrPublish is returned when the transport rejects a publish.
	ErrPublish = errors.New("publish failed")
)
