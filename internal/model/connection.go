package model

// ConnectionState of the device event stream.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connectivity is what the dashboard needs to draw the link indicator.
type Connectivity struct {
	Connected bool
	Host      string // human readable identifier of the device, shown when connected
}
