package cache

import (
	"encoding/json"
	"net"
	"time"
)

// Client implements KV for one bucket over a Unix socket.
type Client struct {
	socketPath string
	bucket     string
}

func NewClient(socketPath, bucket string) *Client {
	return &Client{socketPath: socketPath, bucket: bucket}
}

// Ping checks that a daemon is listening on the socket.
func Ping(socketPath string) error {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) roundTrip(req Request) (Response, error) {
	var resp Response
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	req.Bucket = c.bucket
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return resp, err
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, err
	}
	if !resp.OK {
		return resp, remoteError(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(key string) (Entry, error) {
	resp, err := c.roundTrip(Request{Op: "get", Key: key})
	if err != nil {
		return Entry{}, err
	}
	if resp.StoredAt <= 0 || resp.TTL < 0 {
		return Entry{}, ErrCorrupt
	}
	return Entry{
		Value:    append([]byte(nil), resp.Value...),
		StoredAt: time.Unix(0, resp.StoredAt),
		TTL:      time.Duration(resp.TTL),
	}, nil
}

func (c *Client) Put(key string, entry Entry) error {
	_, err := c.roundTrip(Request{
		Op:       "put",
		Key:      key,
		Value:    entry.Value,
		StoredAt: entry.StoredAt.UnixNano(),
		TTL:      int64(entry.TTL),
	})
	return err
}

func (c *Client) Delete(key string) (bool, error) {
	resp, err := c.roundTrip(Request{Op: "delete", Key: key})
	return resp.Existed, err
}

func (c *Client) Clear() (int, error) {
	resp, err := c.roundTrip(Request{Op: "clear"})
	return resp.Count, err
}

// remoteError maps daemon error strings back onto the package sentinels.
func remoteError(msg string) error {
	switch msg {
	case ErrNotFound.Error():
		return ErrNotFound
	case ErrCorrupt.Error():
		return ErrCorrupt
	}
	return &simpleError{s: msg}
}

type simpleError struct{ s string }

func (e *simpleError) Error() string { return e.s }
