package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Send delivers cmd to the daemon listening on path and returns its reply.
// A Response with Success false is returned as is, not as an error.
func Send(path string, cmd Command, timeout time.Duration) (*Response, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("error connecting to daemon socket (%s): %w", path, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("error sending command: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("error receiving response: %w", err)
	}
	return &resp, nil
}

// DecodeData re-decodes the loosely typed Data of a response into out.
func DecodeData(resp *Response, out interface{}) error {
	if resp.Data == nil {
		return fmt.Errorf("response carries no data")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal response data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}
