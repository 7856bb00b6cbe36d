package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// TestContext drives a running guildgate instance over HTTP. Cookies persist
// across steps within a scenario, like a browser, and redirects are not
// followed so the provider redirect can be inspected.
type TestContext struct {
	baseURL string
	client  *http.Client

	lastStatus   int
	lastHeaders  http.Header
	lastBody     []byte
	lastLocation *url.URL
}

func NewTestContext(baseURL string) (*TestContext, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &TestContext{
		baseURL: baseURL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// GET performs a GET against the service and records the response.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

// DELETE performs a DELETE against the service and records the response.
func (tc *TestContext) DELETE(path string) error {
	req, err := http.NewRequest(http.MethodDelete, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	tc.lastStatus = resp.StatusCode
	tc.lastHeaders = resp.Header
	tc.lastBody = body
	tc.lastLocation = nil
	if loc := resp.Header.Get("Location"); loc != "" {
		tc.lastLocation, err = url.Parse(loc)
		if err != nil {
			return fmt.Errorf("parse Location header: %w", err)
		}
	}
	return nil
}

// LastStatus returns the status code of the most recent response.
func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

// LastLocation returns the parsed Location header of the most recent
// response, or nil.
func (tc *TestContext) LastLocation() *url.URL {
	return tc.lastLocation
}

// GetResponseField looks up a top-level field in the most recent JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var parsed map[string]any
	if err := json.Unmarshal(tc.lastBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response body %q: %w", tc.lastBody, err)
	}
	value, ok := parsed[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response body %q", field, tc.lastBody)
	}
	return value, nil
}
