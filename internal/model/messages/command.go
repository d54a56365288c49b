package messages

// CommandRequest is the body of POST /command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse is whatever JSON object the device answers with.
// The firmware only guarantees it is valid JSON, so it is kept generic.
type CommandResponse map[string]any

// RebootAck tells the operator the device accepted the reboot request.
type RebootAck struct {
	Message  string          `json:"message"`
	Response CommandResponse `json:"response,omitempty"`
}
