package syncthing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the daemon surface the engine and app consume. Implemented by
// *Client; fakes implement it in tests.
type API interface {
	Connect(ctx context.Context) (*Snapshot, error)
	FetchEvents(ctx context.Context, since uint64) ([]Event, error)
	PutDevice(ctx context.Context, device DeviceConfig) error
	PutFolder(ctx context.Context, folder FolderConfig) error
	DeleteDevice(ctx context.Context, deviceID string) error
	DeleteFolder(ctx context.Context, folderID string) error
	DismissPendingDevice(ctx context.Context, deviceID string) error
	DismissPendingFolder(ctx context.Context, folderID, deviceID string) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// ConnectionError wraps any transport failure that prevents reaching the
// daemon. Callers test for it with errors.As and retry with backoff.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("daemon unreachable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MutationError reports a daemon-side rejection of a mutation request.
type MutationError struct {
	Status int
	Reason string
}

func (e *MutationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("daemon rejected request: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("daemon rejected request: status %d", e.Status)
}

// Client talks to the daemon's REST API.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	http      *http.Client
	eventHTTP *http.Client
	userAgent string
}

const (
	defaultAddress   = "127.0.0.1:8384"
	defaultUserAgent = "synctui/0.1"
	requestTimeout   = 5 * time.Second

	// The events endpoint holds the request open server-side for up to
	// eventPollSeconds before returning an empty batch.
	eventPollSeconds = 60
)

// NewClient builds a Client for the given host:port address and API key. The
// key is the daemon's GUI API key (configuration/gui/apikey) and is sent as
// X-API-KEY on every request.
func NewClient(address, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key required")
	}
	base, err := parseBaseURL(address)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		// Long poll needs headroom past the server-side window.
		eventHTTP: &http.Client{
			Timeout: (eventPollSeconds + 10) * time.Second,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// Connect fetches everything a full resync needs: the local device ID, the
// configuration, per-device connection status and both pending sets. Any
// failure is reported as a ConnectionError.
func (c *Client) Connect(ctx context.Context) (*Snapshot, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	localID, err := c.ping(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	snap := Snapshot{LocalID: localID}
	if err := c.get(ctx, "/rest/config", &snap.Config); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	if err := c.get(ctx, "/rest/system/connections", &snap.Connections); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	if err := c.get(ctx, "/rest/cluster/pending/devices", &snap.PendingDevices); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	if err := c.get(ctx, "/rest/cluster/pending/folders", &snap.PendingFolders); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return &snap, nil
}

// ping checks liveness and returns the local device ID carried in the
// X-Syncthing-ID response header.
func (c *Client) ping(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, &url.URL{Path: "/rest/system/ping"}, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ping returned status %d", resp.StatusCode)
	}
	id := resp.Header.Get("X-Syncthing-ID")
	if id == "" {
		return "", errors.New("daemon did not report its device ID")
	}
	return id, nil
}

// FetchEvents long-polls the event feed for events after the given sequence
// number. An empty batch means the server-side window elapsed quietly.
func (c *Client) FetchEvents(ctx context.Context, since uint64) ([]Event, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	values.Set("since", strconv.FormatUint(since, 10))
	values.Set("timeout", strconv.Itoa(eventPollSeconds))
	rel := &url.URL{Path: "/rest/events", RawQuery: values.Encode()}

	req, err := c.newRequest(ctx, http.MethodGet, rel, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.eventHTTP.Do(req)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return nil, &ConnectionError{Err: fmt.Errorf("events returned status %d", resp.StatusCode)}
	}
	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("decode events: %w", err)}
	}
	return events, nil
}

// PutDevice creates or updates a device configuration.
func (c *Client) PutDevice(ctx context.Context, device DeviceConfig) error {
	return c.send(ctx, http.MethodPost, &url.URL{Path: "/rest/config/devices"}, device)
}

// PutFolder creates or updates a folder configuration.
func (c *Client) PutFolder(ctx context.Context, folder FolderConfig) error {
	return c.send(ctx, http.MethodPost, &url.URL{Path: "/rest/config/folders"}, folder)
}

// DeleteDevice removes a device from the configuration.
func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	return c.send(ctx, http.MethodDelete, &url.URL{Path: "/rest/config/devices/" + deviceID}, nil)
}

// DeleteFolder removes a folder from the configuration.
func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	return c.send(ctx, http.MethodDelete, &url.URL{Path: "/rest/config/folders/" + folderID}, nil)
}

// DismissPendingDevice drops the record of a pending device. The device may
// announce itself again later; this is a dismissal, not a permanent ignore.
func (c *Client) DismissPendingDevice(ctx context.Context, deviceID string) error {
	values := url.Values{}
	values.Set("device", deviceID)
	rel := &url.URL{Path: "/rest/cluster/pending/devices", RawQuery: values.Encode()}
	return c.send(ctx, http.MethodDelete, rel, nil)
}

// DismissPendingFolder drops a pending folder offer. With an empty deviceID
// the offer is dropped for all offering devices.
func (c *Client) DismissPendingFolder(ctx context.Context, folderID, deviceID string) error {
	values := url.Values{}
	values.Set("folder", folderID)
	if deviceID != "" {
		values.Set("device", deviceID)
	}
	rel := &url.URL{Path: "/rest/cluster/pending/folders", RawQuery: values.Encode()}
	return c.send(ctx, http.MethodDelete, rel, nil)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := c.newRequest(ctx, http.MethodGet, &url.URL{Path: path}, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send issues a mutation. 4xx means the daemon rejected the request
// (MutationError); transport failures and 5xx are ConnectionErrors so the
// caller can distinguish "refused" from "unreachable".
func (c *Client) send(ctx context.Context, method string, rel *url.URL, body any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, rel, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode >= 500:
		return &ConnectionError{Err: fmt.Errorf("api %s returned status %d", rel.Path, resp.StatusCode)}
	case resp.StatusCode >= 400:
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &MutationError{Status: resp.StatusCode, Reason: strings.TrimSpace(string(reason))}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, rel *url.URL, body io.Reader) (*http.Request, error) {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-API-KEY", c.apiKey)
	return req, nil
}

func parseBaseURL(address string) (*url.URL, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		trimmed = defaultAddress
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
