package config

import "time"

type WorkspaceAPI struct {
	Global *Global `yaml:"-"`

	// The WorkspaceAPI database stores users, orgs, projects, pages and
	// the editor role tables consumed by the permission resolver.
	Database DatabaseOptions `yaml:"database,omitempty"`

	// Auth carries the token signing configuration.
	Auth Auth `yaml:"auth"`

	// Rate limiting of REST requests, mainly to slow down password guessing
	// against the login endpoint.
	RateLimiting HTTPRateLimiting `yaml:"rate_limiting"`
}

func (c *WorkspaceAPI) Defaults(opts DefaultOpts) {
	c.Auth.Defaults()
	c.RateLimiting.Defaults()
	if opts.Generate && !opts.SingleDatabase {
		c.Database.ConnectionString = "file:workspaceapi.db"
	}
}

func (c *WorkspaceAPI) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "workspace_api.auth.jwt_secret", c.Auth.JWTSecret)
	c.RateLimiting.Verify(configErrs)
	if c.Global.DatabaseOptions.ConnectionString == "" {
		checkNotEmpty(configErrs, "workspace_api.database.connection_string", string(c.Database.ConnectionString))
	}
}

// HTTPRateLimiting is the token-bucket limiter applied to REST handlers.
// Distinct from the WebSocket connect limiter, which counts connects per
// fixed window.
type HTTPRateLimiting struct {
	Enabled           bool     `yaml:"enabled"`
	Threshold         int64    `yaml:"threshold"`
	CooloffMS         int64    `yaml:"cooloff_ms"`
	ExemptUserIDs     []int64  `yaml:"exempt_user_ids"`
	ExemptIPAddresses []string `yaml:"exempt_ip_addresses"`
}

func (r *HTTPRateLimiting) Defaults() {
	r.Enabled = true
	r.Threshold = 20
	r.CooloffMS = 500
}

func (r *HTTPRateLimiting) Verify(configErrs *ConfigErrors) {
	if !r.Enabled {
		return
	}
	checkPositive(configErrs, "workspace_api.rate_limiting.threshold", r.Threshold)
	checkPositive(configErrs, "workspace_api.rate_limiting.cooloff_ms", r.CooloffMS)
}

type Auth struct {
	// Secret used to sign and verify session tokens. Connections carrying
	// tokens signed with any other secret are treated as anonymous.
	JWTSecret string `yaml:"jwt_secret"`

	// How long issued tokens remain valid.
	TokenLifetime time.Duration `yaml:"token_lifetime"`
}

func (a *Auth) Defaults() {
	if a.TokenLifetime == 0 {
		a.TokenLifetime = 7 * 24 * time.Hour
	}
}
