package cloudage

import (
	"encoding/json"
	"fmt"
	"time"
)

// EncodeOutput builds the frame that drives output index (0-based) of a
// device to value. An empty signature falls back to the device id.
func EncodeOutput(deviceID string, index int, value bool, signature string) (CommandFrame, error) {
	if index < 0 {
		return CommandFrame{}, fmt.Errorf("%w: output index %d is negative", ErrEncoding, index)
	}
	v := 0
	if value {
		v = 1
	}
	return CommandFrame{
		Command:   CommandOutput,
		Type:      OperationWrite,
		Signature: signatureOrID(deviceID, signature),
		Payload: OutputPayload{
			ID:    index + 1,
			Value: v,
		},
	}, nil
}

// EncodeDateTime builds the RTC sync frame for now.
func EncodeDateTime(deviceID, signature string, now time.Time) DateTimeFrame {
	return DateTimeFrame{
		Command:   CommandDateTime,
		Type:      OperationWrite,
		Signature: signatureOrID(deviceID, signature),
		Payload: DateTimePayload{
			DateTime: DateTime{
				Day:   now.Day(),
				Month: int(now.Month()),
				Year:  now.Year(),
				Hour:  now.Hour(),
				Min:   now.Minute(),
				Sec:   now.Second(),
			},
		},
	}
}

func (f CommandFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

func (f DateTimeFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

func signatureOrID(deviceID, signature string) string {
	if signature == "" {
		return deviceID
	}
	return signature
}
