package transport

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/goccy/go-json"

	"courier/internal/credentials"
	"courier/internal/domain"
	"courier/internal/metrics"
)

var invalidTokenPattern = regexp.MustCompile(`(?i)(invalid|expired)[ _-]?token|token[ _-]?(is[ _-])?(invalid|expired)|unauthenticated`)

type errorBody struct {
	Message      string `json:"message"`
	Error        string `json:"error"`
	TokenInvalid bool   `json:"token_invalid"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// isInvalidToken reports whether resp says the bearer token was rejected.
func isInvalidToken(resp *Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	if len(resp.Body) == 0 || resp.Body[0] != '{' {
		return false
	}
	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false
	}
	return body.TokenInvalid ||
		invalidTokenPattern.MatchString(body.Message) ||
		invalidTokenPattern.MatchString(body.Error)
}

// refresh exchanges the stored refresh token for a new session. usedToken is
// the access token the rejected request carried; if the store already holds a
// different one another caller refreshed first and refresh returns nil.
func (c *Client) refresh(ctx context.Context, usedToken string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cred, err := c.store.Load(ctx)
	if err != nil {
		c.forceLogout(ctx, fmt.Errorf("load credential: %w", err))
		return ErrSessionExpired
	}
	if cred.AccessToken != usedToken {
		c.logger.Debug().Msg("[TRANSPORT] Token already rotated, retrying")
		return nil
	}

	attempt := c.refreshAttempts.Add(1)
	if attempt > c.maxAttempts {
		c.refreshAttempts.Store(0)
		metrics.TokenRefreshes.WithLabelValues("exhausted").Inc()
		c.forceLogout(ctx, fmt.Errorf("refresh attempts exhausted"))
		return ErrSessionExpired
	}
	if !cred.RefreshUsable(c.clock.Now()) {
		c.refreshAttempts.Store(0)
		metrics.TokenRefreshes.WithLabelValues("missing").Inc()
		c.forceLogout(ctx, fmt.Errorf("refresh token missing or expired"))
		return ErrSessionExpired
	}

	body, err := encode(refreshRequest{RefreshToken: cred.RefreshToken})
	if err != nil {
		return err
	}
	resp, _, err := c.send(ctx, http.MethodPost, RefreshPath, body, "")
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Int32("attempt", attempt).Msg("[TRANSPORT] Refresh request failed")
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		c.logger.Warn().Int("status", resp.StatusCode).Int32("attempt", attempt).Msg("[TRANSPORT] Refresh rejected by server error")
		return fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)

	case !resp.OK():
		c.refreshAttempts.Store(0)
		metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		c.forceLogout(ctx, fmt.Errorf("refresh rejected with status %d", resp.StatusCode))
		return ErrSessionExpired
	}

	var next domain.AuthCredential
	if err := json.Unmarshal(resp.Body, &next); err != nil || next.AccessToken == "" {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: malformed refresh response", ErrRefreshFailed)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
		next.RefreshExpiresAt = cred.RefreshExpiresAt
	}
	credentials.FillExpiry(&next)
	if err := c.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("%w: save credential: %v", ErrRefreshFailed, err)
	}

	c.refreshAttempts.Store(0)
	c.forget()
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	c.logger.Info().Msg("[TRANSPORT] Session refreshed")
	return nil
}

func (c *Client) forceLogout(ctx context.Context, reason error) {
	c.logger.Warn().Err(reason).Msg("[TRANSPORT] Forcing logout")
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("[TRANSPORT] Failed to clear credential")
	}
	c.forget()
	if c.onForcedLogout != nil {
		c.onForcedLogout(reason)
	}
}
