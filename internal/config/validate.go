package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the agent configuration for values the agent cannot run with.
func (c *AgentConfig) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api.timeout must be positive"))
	}
	if c.API.MaxRefreshAttempts < 1 {
		errs = append(errs, errors.New("api.max_refresh_attempts must be at least 1"))
	}
	if c.Tracking.PollInterval <= 0 {
		errs = append(errs, errors.New("tracking.poll_interval must be positive"))
	}
	if c.Tracking.SafetyNetInterval <= 0 {
		errs = append(errs, errors.New("tracking.safety_net_interval must be positive"))
	}
	switch c.Tracking.Precision {
	case "high", "balanced", "low":
	default:
		errs = append(errs, fmt.Errorf("tracking.precision %q is not one of high, balanced, low", c.Tracking.Precision))
	}
	switch c.Tracking.EmptyOrdersPolicy {
	case "skip":
	case "placeholder":
		if c.Tracking.PlaceholderOrderID == "" {
			errs = append(errs, errors.New("tracking.placeholder_order_id is required with the placeholder policy"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracking.empty_orders_policy %q is not one of skip, placeholder", c.Tracking.EmptyOrdersPolicy))
	}
	if c.Location.FixTimeout <= 0 {
		errs = append(errs, errors.New("location.fix_timeout must be positive"))
	}
	if len(c.Location.Providers) == 0 {
		errs = append(errs, errors.New("location.providers must name at least one provider"))
	}
	for _, p := range c.Location.Providers {
		switch p {
		case "gpsd", "replay":
		default:
			errs = append(errs, fmt.Errorf("location.providers: unknown provider %q", p))
		}
	}
	switch c.Location.Permission {
	case "granted", "denied":
	case "consent_file":
		if c.Location.ConsentFile == "" {
			errs = append(errs, errors.New("location.consent_file is required with the consent_file permission"))
		}
	default:
		errs = append(errs, fmt.Errorf("location.permission %q is not one of granted, denied, consent_file", c.Location.Permission))
	}
	if c.Orders.PollInterval <= 0 {
		errs = append(errs, errors.New("orders.poll_interval must be positive"))
	}
	if c.Credentials.Path == "" {
		errs = append(errs, errors.New("credentials.path is required"))
	}

	return errors.Join(errs...)
}

// Validate checks the gateway configuration.
func (c *ServerConfig) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("database.max_idle_conns must not exceed database.max_open_conns"))
	}
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth token TTLs must be positive"))
	}
	if c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		errs = append(errs, errors.New("auth.refresh_ttl must be longer than auth.access_ttl"))
	}
	if c.NewRelic.Enabled && c.NewRelic.LicenseKey == "" {
		errs = append(errs, errors.New("newrelic.license_key is required when newrelic.enabled is set"))
	}

	return errors.Join(errs...)
}
