// Package httpc is a typed client for the tonelink HTTP API with
// production timeouts. Use it instead of http.DefaultClient.
package httpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/tonelink/pkg/pcm"
	"github.com/teslashibe/tonelink/pkg/protocol"
	"github.com/teslashibe/tonelink/pkg/web"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// ErrStatus is wrapped by *StatusError.
var ErrStatus = errors.New("httpc: unexpected status")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpc: status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// NewHTTPClient creates an *http.Client with the default transport and
// the given overall timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Client talks to one tonelink server.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at baseURL (e.g. http://host:8080).
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: NewHTTPClient(DefaultTimeout),
	}
}

// Health returns nil if the server answers /api/health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// Presets lists the server's presets.
func (c *Client) Presets(ctx context.Context) ([]web.PresetInfo, error) {
	var out []web.PresetInfo
	if err := c.do(ctx, http.MethodGet, "/api/presets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode encodes one frame remotely.
func (c *Client) Encode(ctx context.Context, req web.EncodeRequest) (*protocol.EncodedData, error) {
	var out protocol.EncodedData
	if err := c.do(ctx, http.MethodPost, "/api/encode", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EncodeWAV encodes one frame remotely and returns the WAV container.
func (c *Client) EncodeWAV(ctx context.Context, req web.EncodeRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodPost, "/api/encode?format=wav", req, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PCM is one remotely encoded frame as bare samples.
type PCM struct {
	Frame      []byte
	SampleRate int
	Samples    []int16
}

// EncodePCM encodes one frame remotely and returns its samples.
func (c *Client) EncodePCM(ctx context.Context, req web.EncodeRequest) (*PCM, error) {
	var raw rawResponse
	if err := c.do(ctx, http.MethodPost, "/api/encode?format=pcm", req, &raw); err != nil {
		return nil, err
	}
	rate, err := strconv.Atoi(raw.header.Get(web.HeaderSampleRate))
	if err != nil {
		return nil, fmt.Errorf("httpc: bad %s header: %w", web.HeaderSampleRate, err)
	}
	frame, err := hex.DecodeString(raw.header.Get(web.HeaderFrame))
	if err != nil {
		return nil, fmt.Errorf("httpc: bad %s header: %w", web.HeaderFrame, err)
	}
	return &PCM{
		Frame:      frame,
		SampleRate: rate,
		Samples:    pcm.BytesToSamples(raw.body.Bytes()),
	}, nil
}

// Decode parses one frame remotely.
func (c *Client) Decode(ctx context.Context, preset string, frame []byte) (*protocol.DecodedData, error) {
	var out protocol.DecodedData
	req := web.DecodeRequest{Preset: preset, Frame: hex.EncodeToString(frame)}
	if err := c.do(ctx, http.MethodPost, "/api/decode", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scan finds every frame in b remotely.
func (c *Client) Scan(ctx context.Context, preset string, b []byte) (*protocol.ScannedData, error) {
	var out protocol.ScannedData
	req := web.DecodeRequest{Preset: preset, Frame: hex.EncodeToString(b)}
	if err := c.do(ctx, http.MethodPost, "/api/frames", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// rawResponse keeps the body and headers of a non-JSON response.
type rawResponse struct {
	header http.Header
	body   bytes.Buffer
}

// do sends body as JSON and decodes the response into out. A *bytes.Buffer
// or *rawResponse out receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpc: encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return fmt.Errorf("httpc: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}

	switch dst := out.(type) {
	case nil:
		_, err = io.Copy(io.Discard, resp.Body)
	case *bytes.Buffer:
		_, err = io.Copy(dst, resp.Body)
	case *rawResponse:
		dst.header = resp.Header
		_, err = io.Copy(&dst.body, resp.Body)
	default:
		err = json.NewDecoder(resp.Body).Decode(out)
	}
	if err != nil {
		return fmt.Errorf("httpc: read %s response: %w", path, err)
	}
	return nil
}
