package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nick134920/ClaudeFlow/internal/blocks"
	"github.com/nick134920/ClaudeFlow/internal/version"
)

const (
	// DefaultBaseURL is the public page store API.
	DefaultBaseURL = "https://api.notion.com"
	// DefaultVersion is the API version header sent with every call.
	DefaultVersion = "2022-06-28"
)

// Page identifies a created page.
type Page struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Transport performs single remote calls without retrying.
type Transport interface {
	CreatePage(ctx context.Context, parentID, title string, children []blocks.WireBlock) (Page, error)
	AppendChildren(ctx context.Context, blockID string, children []blocks.WireBlock) error
}

// HTTPTransport talks to the page store REST API.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	token   string
	version string
}

// NewHTTPTransport constructs an HTTPTransport with sane defaults.
func NewHTTPTransport(baseURL, token, version string, timeout time.Duration) *HTTPTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		version: version,
	}
}

type createPageRequest struct {
	Parent     pageParent         `json:"parent"`
	Properties map[string]any     `json:"properties"`
	Children   []blocks.WireBlock `json:"children"`
}

type pageParent struct {
	PageID string `json:"page_id"`
}

type appendChildrenRequest struct {
	Children []blocks.WireBlock `json:"children"`
}

// CreatePage creates a child page of parentID holding children.
func (t *HTTPTransport) CreatePage(ctx context.Context, parentID, title string, children []blocks.WireBlock) (Page, error) {
	if children == nil {
		children = []blocks.WireBlock{}
	}
	body := createPageRequest{
		Parent: pageParent{PageID: parentID},
		Properties: map[string]any{
			"title": []blocks.RichText{{Type: "text", Text: blocks.RichTextText{Content: title}}},
		},
		Children: children,
	}

	var page Page
	if err := t.do(ctx, http.MethodPost, "/v1/pages", body, &page); err != nil {
		return Page{}, err
	}
	if page.ID == "" {
		return Page{}, fmt.Errorf("notion: create page response without id")
	}
	return page, nil
}

// AppendChildren appends children to the block (or page) blockID.
func (t *HTTPTransport) AppendChildren(ctx context.Context, blockID string, children []blocks.WireBlock) error {
	return t.do(ctx, http.MethodPatch, "/v1/blocks/"+blockID+"/children", appendChildrenRequest{Children: children}, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", t.version)
	req.Header.Set("User-Agent", version.UserAgent())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	res, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return decodeAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(b))
	}
	return &APIError{Status: res.StatusCode, Code: body.Code, Message: body.Message}
}
