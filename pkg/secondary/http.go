package secondary

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/opencradle/cradle/pkg/blob"
	"github.com/opencradle/cradle/pkg/config"
)

// HTTPRequestError indicates that an HTTP request could not be performed
// at all (connection refused, timeout). Retriable by the default retrier.
type HTTPRequestError struct {
	Err error
}

func (e *HTTPRequestError) Error() string {
	return "http request failure: " + e.Err.Error()
}

func (e *HTTPRequestError) Unwrap() error {
	return e.Err
}

// HTTPStatusError indicates an unexpected HTTP status code.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("bad http status code %d", e.Code)
}

const defaultHTTPCachePort = 10010

// HTTP is a storage plugin backed by a CAS server reachable over HTTP,
// typically on localhost. Values travel inline; blob files are not
// allowed.
type HTTP struct {
	base   string
	client *http.Client

	mu   sync.RWMutex
	mock *string
}

// NewHTTPFromConfig builds the plugin from http_cache/host and
// http_cache/port.
func NewHTTPFromConfig(cfg config.Config) (Storage, error) {
	host, err := cfg.StringOrDefault(config.KeyHTTPCacheHost, "localhost")
	if err != nil {
		return nil, err
	}
	port, err := cfg.NumberOrDefault(config.KeyHTTPCachePort, defaultHTTPCachePort)
	if err != nil {
		return nil, err
	}
	return NewHTTP(fmt.Sprintf("http://%s:%d", host, port)), nil
}

func NewHTTP(base string) *HTTP {
	return &HTTP{
		base: base,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTP) Name() string {
	return "http"
}

func (s *HTTP) AllowBlobFiles() bool {
	return false
}

// Mock makes every read return the given body with a 200 status, without
// touching the network. For tests.
func (s *HTTP) Mock(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mock = &body
}

func (s *HTTP) Read(ctx context.Context, key string) (blob.Blob, bool, error) {
	s.mu.RLock()
	mock := s.mock
	s.mu.RUnlock()
	if mock != nil {
		return blob.FromString(*mock), true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/"+key, nil)
	if err != nil {
		return blob.Blob{}, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return blob.Blob{}, false, &HTTPRequestError{Err: err}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return blob.Blob{}, false, &HTTPRequestError{Err: err}
		}
		return blob.FromBytes(data), true, nil
	case http.StatusNotFound:
		return blob.Blob{}, false, nil
	default:
		return blob.Blob{}, false, &HTTPStatusError{Code: resp.StatusCode}
	}
}

func (s *HTTP) Write(ctx context.Context, key string, value blob.Blob) error {
	s.mu.RLock()
	mock := s.mock
	s.mu.RUnlock()
	if mock != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPut, s.base+"/"+key, bytes.NewReader(value.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := s.client.Do(req)
	if err != nil {
		return &HTTPRequestError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusNoContent {
		return &HTTPStatusError{Code: resp.StatusCode}
	}
	return nil
}

func (s *HTTP) Clear() error {
	// The CAS server owns its contents; nothing to clear from here.
	return nil
}
