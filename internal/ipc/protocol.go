package ipc

import "winwatch/internal/heartbeat"

// Command represents a command sent over the socket
type Command struct {
	Name string `json:"name"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	CmdGetStatus = "get_status"
	CmdPing      = "ping" // Simple health check
)

// StatusData is the payload of a get_status response.
type StatusData struct {
	Bucket       string           `json:"bucket"`
	Server       string           `json:"server"`
	PollTime     float64          `json:"poll_time"`
	ExcludeTitle bool             `json:"exclude_title"`
	QueuePending int              `json:"queue_pending"`
	Loop         heartbeat.Status `json:"loop"`
}
