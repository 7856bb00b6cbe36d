package auth

import (
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext defines what the auth steps need from the suite context.
type TestContext interface {
	GET(path string, headers map[string]string) error
	DELETE(path string) error
	LastStatus() int
	LastLocation() *url.URL
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers the login-flow step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^the service is healthy$`, steps.serviceIsHealthy)
	ctx.Step(`^I start a login$`, steps.startLogin)
	ctx.Step(`^I am redirected to the provider with a state parameter$`, steps.redirectedWithState)
	ctx.Step(`^I call the callback with state "([^"]*)" and code "([^"]*)"$`, steps.callCallback)
	ctx.Step(`^I request "([^"]*)" without a credential$`, steps.requestWithoutCredential)
	ctx.Step(`^I request "([^"]*)" with credential "([^"]*)"$`, steps.requestWithCredential)
	ctx.Step(`^I log out$`, steps.logOut)
	ctx.Step(`^the response status is (\d+)$`, steps.responseStatusIs)
	ctx.Step(`^the response field "([^"]*)" is "([^"]*)"$`, steps.responseFieldIs)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) serviceIsHealthy() error {
	if err := s.tc.GET("/healthz", nil); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("health check returned %d", s.tc.LastStatus())
	}
	return nil
}

func (s *authSteps) startLogin() error {
	return s.tc.GET("/auth/login", nil)
}

func (s *authSteps) redirectedWithState() error {
	if s.tc.LastStatus() != 302 {
		return fmt.Errorf("expected 302 redirect, got %d", s.tc.LastStatus())
	}
	location := s.tc.LastLocation()
	if location == nil {
		return fmt.Errorf("redirect has no Location header")
	}
	query := location.Query()
	if query.Get("state") == "" {
		return fmt.Errorf("provider redirect %q carries no state", location)
	}
	if query.Get("response_type") != "code" {
		return fmt.Errorf("provider redirect %q is not an authorization code request", location)
	}
	return nil
}

func (s *authSteps) callCallback(state, code string) error {
	return s.tc.GET("/auth/callback?state="+url.QueryEscape(state)+"&code="+url.QueryEscape(code), nil)
}

func (s *authSteps) requestWithoutCredential(path string) error {
	return s.tc.GET(path, nil)
}

func (s *authSteps) requestWithCredential(path, credential string) error {
	return s.tc.GET(path, map[string]string{
		"Authorization": "Bearer " + credential,
	})
}

func (s *authSteps) logOut() error {
	return s.tc.DELETE("/auth/logout")
}

func (s *authSteps) responseStatusIs(status int) error {
	if s.tc.LastStatus() != status {
		return fmt.Errorf("expected status %d, got %d", status, s.tc.LastStatus())
	}
	return nil
}

func (s *authSteps) responseFieldIs(field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	got, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %q is %T, not a string", field, value)
	}
	if got != expected {
		return fmt.Errorf("field %q is %q, expected %q", field, got, expected)
	}
	return nil
}
