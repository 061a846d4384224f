// Package gotrue adapts the hosted auth service client to session.Authenticator.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	gotrueapi "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

const defaultTimeout = 15 * time.Second

// statusPattern matches the errors the client library builds for non-2xx
// responses.
var statusPattern = regexp.MustCompile(`(?s)response status code (\d+)(?::\s*(.*))?`)

type Client struct {
	api    gotrueapi.Client
	logger *logger.Logger
}

// NewClient takes the project URL, e.g. https://xyz.supabase.co. A nil
// httpClient gets a default with a timeout.
func NewClient(projectURL, anonKey string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	api := gotrueapi.New("", anonKey).
		WithCustomGoTrueURL(strings.TrimRight(projectURL, "/") + "/auth/v1").
		WithClient(*httpClient)
	return &Client{api: api, logger: log.Named("GoTrueClient")}
}

type errorResponse struct {
	Code             int    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorResponse) message() string {
	for _, s := range []string{e.Msg, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown auth error"
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Tokens, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return c.api.Token(types.TokenRequest{GrantType: "password", Email: email, Password: password})
	})
	if err != nil {
		return nil, c.fail("token", err)
	}
	return &session.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

// SignUp returns tokens with an empty AccessToken when the project requires
// email confirmation.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*session.Tokens, error) {
	resp, err := call(ctx, func() (*types.SignupResponse, error) {
		return c.api.Signup(types.SignupRequest{
			Email:    email,
			Password: password,
			Data:     map[string]interface{}{"display_name": displayName},
		})
	})
	if err != nil {
		return nil, c.fail("signup", err)
	}
	return &session.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := call(ctx, func() (struct{}, error) {
		return struct{}{}, c.api.WithToken(accessToken).Logout()
	})
	if err != nil {
		return c.fail("logout", err)
	}
	return nil
}

func (c *Client) fail(op string, err error) error {
	mapped := classify(err)
	if errors.Is(mapped, domain.ErrUnavailable) {
		c.logger.Warn("GoTrueClient: request failed", "op", op, "error", err)
	}
	return mapped
}

// call runs fn, which cannot be cancelled itself, and gives up waiting when
// ctx is done.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
	case r := <-ch:
		return r.v, r.err
	}
}

func classify(err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		var e errorResponse
		_ = json.Unmarshal([]byte(strings.TrimSpace(m[2])), &e)
		return classifyStatus(status, e)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return fmt.Errorf("auth request failed: %w", err)
}

func classifyStatus(status int, e errorResponse) error {
	msg := e.message()
	lower := strings.ToLower(msg)
	switch {
	case e.ErrorCode == "invalid_credentials" || e.Error == "invalid_grant" || strings.Contains(lower, "invalid login credentials"):
		return fmt.Errorf("%w: %s", session.ErrInvalidCredentials, msg)
	case e.ErrorCode == "user_already_exists" || e.ErrorCode == "email_exists" || strings.Contains(lower, "already registered"):
		return fmt.Errorf("%w: %s", session.ErrEmailTaken, msg)
	case e.ErrorCode == "weak_password" || strings.Contains(lower, "password should be"):
		return fmt.Errorf("%w: %s", session.ErrWeakPassword, msg)
	case e.ErrorCode == "validation_failed" || status == http.StatusUnprocessableEntity:
		return &domain.ValidationError{Fields: []string{"email"}}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: auth service returned %d: %s", domain.ErrUnavailable, status, msg)
	}
	return fmt.Errorf("auth service returned %d: %s", status, msg)
}
