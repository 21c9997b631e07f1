package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/logging"
)

var log = logging.L("graph")

// Client is a minimal Microsoft Graph REST client. All operations go through
// the Request primitive against a single versioned endpoint.
type Client struct {
	endpoint   string
	apiVersion string
	httpClient *http.Client
	cred       azcore.TokenCredential

	mu    sync.Mutex
	token azcore.AccessToken
}

// NewClient builds a client from config. A client secret selects the
// app-credential flow; without one the Azure CLI credential is used, which is
// the developer path.
func NewClient(cfg config.GraphConfig) (*Client, error) {
	var (
		cred azcore.TokenCredential
		err  error
	)
	if cfg.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewAzureCLICredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build graph credential: %w", err)
	}
	return NewClientWithCredential(cfg.Endpoint, cfg.APIVersion, cred, nil), nil
}

// NewClientWithCredential builds a client around an existing token source.
func NewClientWithCredential(endpoint, apiVersion string, cred azcore.TokenCredential, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiVersion: apiVersion,
		httpClient: httpClient,
		cred:       cred,
	}
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Token != "" && time.Until(c.token.ExpiresOn) > time.Minute {
		return c.token.Token, nil
	}

	tok, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{c.endpoint + "/.default"},
	})
	if err != nil {
		return "", fmt.Errorf("acquire graph token: %w", err)
	}
	c.token = tok
	return tok.Token, nil
}

// Request issues one HTTP call against the versioned endpoint. path must
// start with "/" and is joined under {endpoint}/{apiVersion}. A non-2xx
// response is drained and returned as a *RequestError.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := fmt.Sprintf("%s/%s%s", c.endpoint, c.apiVersion, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(ctx, method, u, body)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, err
	}

	tok, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug("graph request", "method", method, "url", rawURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &RequestError{
			Method:     method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return resp, nil
}

// listAll pages through a collection, following @odata.nextLink until the
// endpoint stops returning one.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var (
		out      []T
		nextLink string
	)

	for {
		var (
			resp *http.Response
			err  error
		)
		if nextLink != "" {
			resp, err = c.do(ctx, http.MethodGet, nextLink, nil)
		} else {
			resp, err = c.Request(ctx, http.MethodGet, path, query, nil)
		}
		if err != nil {
			return nil, err
		}

		var page struct {
			NextLink string `json:"@odata.nextLink"`
			Value    []T    `json:"value"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode graph page: %w", err)
		}

		out = append(out, page.Value...)

		if page.NextLink == "" {
			return out, nil
		}
		nextLink = page.NextLink
	}
}

// getObject fetches a single object at path and decodes it into T.
func getObject[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var obj T
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode graph object: %w", err)
	}
	return &obj, nil
}

// escapeFilterValue doubles single quotes for use inside an OData $filter
// string literal.
func escapeFilterValue(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
