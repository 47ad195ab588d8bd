// Package awclient talks to an ActivityWatch-compatible server over its
// REST API.
package awclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"winwatch/internal/event"
	"winwatch/internal/sink"
)

const (
	DefaultPort        = 5600
	DefaultTestingPort = 5666
	defaultTimeout     = 10 * time.Second
)

type Options struct {
	Host    string
	Port    int // 0 picks the default for the mode
	Testing bool
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Info is the server's /api/0/info payload.
type Info struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Testing  bool   `json:"testing"`
}

type bucketRequest struct {
	Client   string `json:"client"`
	Type     string `json:"type"`
	Hostname string `json:"hostname"`
}

type heartbeatRequest struct {
	Timestamp time.Time         `json:"timestamp"`
	Duration  float64           `json:"duration"`
	Data      map[string]string `json:"data"`
}

func New(opts Options) *Client {
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
		if opts.Testing {
			port = DefaultTestingPort
		}
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: hc,
	}
}

// NewWithBaseURL points the client at an explicit server root.
func NewWithBaseURL(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: hc}
}

// ClientName is the name the watcher registers under in the given mode.
func ClientName(name string, testing bool) string {
	if testing {
		return name + "-testing"
	}
	return name
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/api/0/info", nil, &info); err != nil {
		return nil, errors.Wrap(err, "failed to get server info")
	}
	return &info, nil
}

// CreateBucket registers the stream's bucket. An existing bucket is not an
// error.
func (c *Client) CreateBucket(ctx context.Context, stream event.StreamID) error {
	path := "/api/0/buckets/" + url.PathEscape(stream.BucketID())
	body := bucketRequest{Client: stream.Client, Type: stream.Type, Hostname: stream.Hostname}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return errors.Wrapf(err, "failed to create bucket %s", stream.BucketID())
	}
	return nil
}

// Heartbeat submits e for merging on the server with the given pulsetime.
func (c *Client) Heartbeat(ctx context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error {
	q := url.Values{}
	q.Set("pulsetime", strconv.FormatFloat(pulsetime.Seconds(), 'f', -1, 64))
	path := "/api/0/buckets/" + url.PathEscape(stream.BucketID()) + "/heartbeat?" + q.Encode()

	body := heartbeatRequest{
		Timestamp: e.Timestamp.UTC(),
		Duration:  e.Duration.Seconds(),
		Data:      e.Data(),
	}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return errors.Wrapf(err, "failed to send heartbeat to %s", stream.BucketID())
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sink.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: %s", sink.ErrUnavailable, method, path, readStatus(resp))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s %s: %s", sink.ErrRejected, method, path, readStatus(resp))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func readStatus(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + " " + msg
}

var _ sink.Sink = (*Client)(nil)
