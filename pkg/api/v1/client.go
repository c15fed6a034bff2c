package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	defaultAddress    = "https://www.bitrise.io"
	defaultAPIAddress = "https://api.bitrise.io"

	// DefaultTriggerTimeout bounds a build start request end to end.
	DefaultTriggerTimeout = 5 * time.Second

	userAgent = "build-trigger"
)

type Config struct {
	// Address is the host serving the build start hook.
	Address string

	// APIAddress is the host serving the REST API used to list and abort
	// builds.
	APIAddress string

	// AccessToken authenticates REST API calls. Build start requests carry
	// their own per-app API token instead.
	AccessToken string

	// TriggerTimeout bounds build start requests.
	TriggerTimeout time.Duration

	HTTPClient *http.Client
}

func DefaultConfig() *Config {
	return &Config{
		Address:        defaultAddress,
		APIAddress:     defaultAPIAddress,
		TriggerTimeout: DefaultTriggerTimeout,
	}
}

type Client struct {
	config     *Config
	httpClient *http.Client
}

func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	c := *cfg
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.APIAddress == "" {
		c.APIAddress = defaultAPIAddress
	}
	if c.TriggerTimeout <= 0 {
		c.TriggerTimeout = DefaultTriggerTimeout
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}

	return &Client{config: &c, httpClient: httpClient}
}

func (c *Client) Config() *Config { return c.config }

// NewRequest builds a request against the build hook host. A non-nil body is
// encoded as JSON.
func (c *Client) NewRequest(method, path string, body any) (*http.Request, error) {
	return c.newRequest(c.config.Address, method, path, body)
}

// NewAPIRequest builds an authenticated request against the REST API host.
func (c *Client) NewAPIRequest(method, path string, body any) (*http.Request, error) {
	req, err := c.newRequest(c.config.APIAddress, method, path, body)
	if err != nil {
		return nil, err
	}
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", c.config.AccessToken)
	}
	return req, nil
}

func (c *Client) newRequest(base, method, path string, body any) (*http.Request, error) {

	u, err := url.Parse(strings.TrimSuffix(base, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request URL: %w", err)
	}

	var buf io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, u.String(), buf)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

// Response wraps the HTTP response and keeps the raw body, which has already
// been read and closed.
type Response struct {
	*http.Response
	Body []byte
}

// Do sends the request and decodes a successful JSON response into v when v
// is not nil. Transport failures are returned as-is; responses outside the
// 2xx range are returned as *ResponseError.
func (c *Client) Do(ctx context.Context, req *http.Request, v any) (*Response, error) {

	httpResp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{Response: httpResp, Body: body}

	if err := checkResponse(resp); err != nil {
		return resp, err
	}

	if v != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return resp, fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	return resp, nil
}

type ResponseError struct {
	ErrorBody `json:"error"`
}

type ErrorBody struct {
	Msg  string `json:"message"`
	Code int    `json:"code"`
}

func NewResponseError(msg string, code int) *ResponseError {
	return &ResponseError{ErrorBody: ErrorBody{Msg: msg, Code: code}}
}

func (e *ResponseError) StatusCode() int { return e.Code }

func (e *ResponseError) Error() string { return e.Msg }

func (e *ResponseError) String() string { return e.Msg }

func checkResponse(resp *Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return responseError(resp)
}

// responseError prefers a message supplied by the server over the generic
// status text.
func responseError(resp *Response) *ResponseError {

	var body struct {
		Message  string  `json:"message"`
		ErrorMsg *string `json:"error_msg"`
		Error    *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	msg := http.StatusText(resp.StatusCode)

	if err := json.Unmarshal(resp.Body, &body); err == nil {
		switch {
		case body.ErrorMsg != nil && *body.ErrorMsg != "":
			msg = *body.ErrorMsg
		case body.Error != nil && body.Error.Message != "":
			msg = body.Error.Message
		case body.Message != "":
			msg = body.Message
		}
	} else if text := strings.TrimSpace(string(resp.Body)); text != "" {
		msg = text
	}

	return NewResponseError(msg, resp.StatusCode)
}
