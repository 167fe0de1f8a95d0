package model

type RegisterDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// RegisterMessage is the Home Assistant discovery document for one switch.
type RegisterMessage struct {
	Tilda        string         `json:"~"`
	Name         string         `json:"name"`
	ID           string         `json:"unique_id"`
	ObjectID     string         `json:"object_id"`
	StateTopic   string         `json:"state_topic"`
	CommandTopic string         `json:"command_topic"`
	PayloadOn    string         `json:"payload_on"`
	PayloadOff   string         `json:"payload_off"`
	Device       RegisterDevice `json:"device"`
}
