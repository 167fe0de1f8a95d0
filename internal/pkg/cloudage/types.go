package cloudage

type CommandType int

const (
	// CommandDateTime sets the controller RTC.
	CommandDateTime CommandType = 9
	// CommandOutput writes a single output.
	CommandOutput CommandType = 11
)

type OperationType int

const (
	OperationWrite OperationType = 1
)

const (
	DefaultTopicPrefix = "CloudAge"
	// MaxOutputs is the largest output count a controller exposes.
	MaxOutputs = 16
)

// CommandFrame is the outbound instruction to set or clear one output.
type CommandFrame struct {
	Command   CommandType   `json:"command"`
	Type      OperationType `json:"type"`
	Signature string        `json:"signature"`
	Payload   OutputPayload `json:"payload"`
}

type OutputPayload struct {
	ID    int `json:"id"` // 1-based on the wire
	Value int `json:"value"`
}

type DateTimeFrame struct {
	Command   CommandType     `json:"command"`
	Type      OperationType   `json:"type"`
	Signature string          `json:"signature"`
	Payload   DateTimePayload `json:"payload"`
}

type DateTimePayload struct {
	DateTime DateTime `json:"datetime"`
}

type DateTime struct {
	Day   int `json:"day"`
	Month int `json:"mon"`
	Year  int `json:"year"`
	Hour  int `json:"hour"`
	Min   int `json:"min"`
	Sec   int `json:"sec"`
}
