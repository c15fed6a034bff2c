package api

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"
)

// Build statuses reported by the CI service.
const (
	BuildStatusRunning        = 0
	BuildStatusSuccess        = 1
	BuildStatusFailed         = 2
	BuildStatusAbortedFailure = 3
	BuildStatusAbortedSuccess = 4
)

type Build struct {
	Slug              string    `json:"slug"`
	BuildNumber       int       `json:"build_number"`
	Status            int       `json:"status"`
	StatusText        string    `json:"status_text"`
	Branch            string    `json:"branch"`
	TriggeredWorkflow string    `json:"triggered_workflow"`
	TriggeredAt       time.Time `json:"triggered_at"`
	CommitMessage     *string   `json:"commit_message"`
}

type Builds struct {
	client *Client
}

func (c *Client) Builds() *Builds {
	return &Builds{client: c}
}

type HookInfo struct {
	APIToken string `json:"api_token"`
}

type BuildStartReq struct {
	AppSlug     string            `json:"-"`
	HookInfo    HookInfo          `json:"hook_info"`
	BuildParams map[string]string `json:"build_params"`
}

type BuildStartResp struct {
	// Raw is the unparsed response body, kept for diagnostic display.
	Raw []byte
}

// Start triggers a build through the per-app build start hook. Only 201
// Created counts as success; any other status is returned as a
// *ResponseError. The request bypasses caches and is bounded by the
// configured trigger timeout.
func (b *Builds) Start(ctx context.Context, req *BuildStartReq) (*BuildStartResp, *Response, error) {

	httpReq, err := b.client.NewRequest(http.MethodPost, "/app/"+url.PathEscape(req.AppSlug)+"/build/start.json", req)
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Pragma", "no-cache")

	ctx, cancel := context.WithTimeout(ctx, b.client.config.TriggerTimeout)
	defer cancel()

	httpResp, err := b.client.Do(ctx, httpReq, nil)
	if err != nil {
		return nil, httpResp, err
	}

	if httpResp.StatusCode != http.StatusCreated {
		return nil, httpResp, NewResponseError(
			fmt.Sprintf("unexpected build start status: %s", httpResp.Status),
			httpResp.StatusCode,
		)
	}

	return &BuildStartResp{Raw: httpResp.Body}, httpResp, nil
}

// MergeParams combines flat build parameter sets. Keys of later sets win on
// collision.
func MergeParams(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		maps.Copy(out, set)
	}
	return out
}

type BuildListReq struct {
	AppSlug string `json:"-"`
}

type BuildListResp struct {
	Builds []*Build `json:"data"`
}

func (b *Builds) List(ctx context.Context, req *BuildListReq) (*BuildListResp, *Response, error) {

	var resp BuildListResp

	httpReq, err := b.client.NewAPIRequest(http.MethodGet, "/v0.1/apps/"+url.PathEscape(req.AppSlug)+"/builds", nil)
	if err != nil {
		return nil, nil, err
	}

	httpResp, err := b.client.Do(ctx, httpReq, &resp)
	if err != nil {
		return nil, httpResp, err
	}

	return &resp, httpResp, nil
}

type BuildAbortReq struct {
	AppSlug           string `json:"-"`
	BuildSlug         string `json:"-"`
	AbortReason       string `json:"abort_reason"`
	AbortWithSuccess  bool   `json:"abort_with_success"`
	SkipNotifications bool   `json:"skip_notifications"`
}

type BuildAbortResp struct {
	Status   string  `json:"status"`
	ErrorMsg *string `json:"error_msg"`
}

func (b *Builds) Abort(ctx context.Context, req *BuildAbortReq) (*BuildAbortResp, *Response, error) {

	var resp BuildAbortResp

	path := "/v0.1/apps/" + url.PathEscape(req.AppSlug) + "/builds/" + url.PathEscape(req.BuildSlug) + "/abort"

	httpReq, err := b.client.NewAPIRequest(http.MethodPost, path, req)
	if err != nil {
		return nil, nil, err
	}

	httpResp, err := b.client.Do(ctx, httpReq, &resp)
	if err != nil {
		return nil, httpResp, err
	}

	return &resp, httpResp, nil
}
