package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/usb-isoupdater/isoupdater/pkg/catalog"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// Client talks to the status API of a running updater. The base URL
// includes the API prefix, e.g. http://127.0.0.1:8080/api/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// a sync pass may download several images
			Timeout: 6 * time.Hour,
		},
	}
}

func setAuth(adminAccessToken string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", adminAccessToken)
	}
}

func getDistroURL(configKey string) string {
	return fmt.Sprintf("distros/%s", configKey)
}

func getReleaseURL(configKey, arch string) string {
	return fmt.Sprintf("%s/%s/release", getDistroURL(configKey), arch)
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader, modifyRequestFns ...func(r *http.Request)) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	for _, f := range modifyRequestFns {
		f(req)
	}
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		err := json.NewDecoder(resp.Body).Decode(&errResp)
		if err != nil {
			return err
		}
		return &errResp
	}
	err := json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		return err
	}
	return nil
}

func get[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var v T
	err = c.decodeResponse(resp, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) GetDistros(ctx context.Context) ([]*catalog.Distro, error) {
	distros, err := get[[]*catalog.Distro](ctx, c, "distros")
	if err != nil {
		return nil, err
	}
	return *distros, nil
}

func (c *Client) GetDistro(ctx context.Context, configKey string) (*catalog.Distro, error) {
	return get[catalog.Distro](ctx, c, getDistroURL(configKey))
}

func (c *Client) GetRelease(ctx context.Context, configKey, arch string) (*catalog.Release, error) {
	return get[catalog.Release](ctx, c, getReleaseURL(configKey, arch))
}

func (c *Client) GetConfig(ctx context.Context) (*catalog.Configuration, error) {
	return get[catalog.Configuration](ctx, c, "config")
}

func (c *Client) GetUSBDevice(ctx context.Context) (*catalog.Device, error) {
	return get[catalog.Device](ctx, c, "usb")
}

func (c *Client) GetLastSync(ctx context.Context) (*catalog.Report, error) {
	return get[catalog.Report](ctx, c, "sync/last")
}

// Sync runs a sync pass on the server and waits for its report.
func (c *Client) Sync(ctx context.Context, adminAccessToken string) (*catalog.Report, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, "sync", nil, setAuth(adminAccessToken))
	if err != nil {
		return nil, err
	}
	var report catalog.Report
	err = c.decodeResponse(resp, &report)
	if err != nil {
		return nil, err
	}
	return &report, nil
}
