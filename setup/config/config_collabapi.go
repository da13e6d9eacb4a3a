package config

import (
	"fmt"
	"net"
)

type CollabAPI struct {
	Global *Global `yaml:"-"`

	// The CollabAPI database stores CRDT updates and snapshots per room.
	// It is only accessed by the CollabAPI.
	Database DatabaseOptions `yaml:"database,omitempty"`

	// Backplane used to fan out room frames and control events to other
	// workers serving the same rooms.
	Backplane Backplane `yaml:"backplane"`

	// Rate-limiting of WebSocket connect attempts.
	RateLimiting ConnectionRateLimiting `yaml:"rate_limiting"`

	// Snapshot policy for in-memory documents.
	Snapshot Snapshot `yaml:"snapshot"`

	// WriteRate throttles mutation frames per session. Zero values disable
	// the throttle.
	WriteRate WriteRate `yaml:"write_rate"`

	// The maximum size in bytes of a single inbound WebSocket message.
	// Note: if max_message_bytes is not set, it will default to 524288 (512KiB)
	MaxMessageBytes DataUnit `yaml:"max_message_bytes,omitempty"`
}

func (c *CollabAPI) Defaults(opts DefaultOpts) {
	c.Backplane.Defaults()
	c.RateLimiting.Defaults()
	c.Snapshot.Defaults()
	c.WriteRate.Defaults()
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = 512 * 1024
	}
	if opts.Generate && !opts.SingleDatabase {
		c.Database.ConnectionString = "file:collabapi.db"
	}
}

func (c *CollabAPI) Verify(configErrs *ConfigErrors) {
	c.Backplane.Verify(configErrs)
	c.RateLimiting.Verify(configErrs)
	c.Snapshot.Verify(configErrs)
	checkPositive(configErrs, "collab_api.max_message_bytes", int64(c.MaxMessageBytes))
	if c.Global.DatabaseOptions.ConnectionString == "" {
		checkNotEmpty(configErrs, "collab_api.database.connection_string", string(c.Database.ConnectionString))
	}
}

const (
	BackplaneJetStream = "jetstream"
	BackplaneRedis     = "redis"
	BackplaneNone      = "none"
)

type Backplane struct {
	// One of "jetstream", "redis" or "none". "none" is only suitable for
	// single-worker deployments: revocation events raised on one worker
	// will not reach sessions held by another.
	Type string `yaml:"type"`

	// Address of the Redis server when type is "redis".
	RedisAddress string `yaml:"redis_address"`
}

func (b *Backplane) Defaults() {
	b.Type = BackplaneJetStream
}

func (b *Backplane) Verify(configErrs *ConfigErrors) {
	switch b.Type {
	case BackplaneJetStream, BackplaneNone:
	case BackplaneRedis:
		checkNotEmpty(configErrs, "collab_api.backplane.redis_address", b.RedisAddress)
	default:
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %s", "collab_api.backplane.type", b.Type))
	}
}

type ConnectionRateLimiting struct {
	// Is rate limiting enabled or disabled?
	Enabled bool `yaml:"enabled"`

	// How many connect attempts a single user (or anonymous IP) may make
	// within the window before further attempts are closed with 4029.
	Connections int64 `yaml:"connections"`

	// The window duration in seconds.
	WindowSeconds int64 `yaml:"window_seconds"`

	// A list of user ids that are exempt from rate limiting, i.e. if you
	// want to run a service bot against busy pages.
	ExemptUserIDs []string `yaml:"exempt_user_ids"`

	// A list of IP addresses or CIDR ranges that bypass rate limiting.
	ExemptIPAddresses []string `yaml:"exempt_ip_addresses"`

	// Address of a Redis server to share counters between workers. Empty
	// keeps the counters process-local.
	RedisAddress string `yaml:"redis_address"`
}

func (r *ConnectionRateLimiting) Defaults() {
	r.Enabled = true
	r.Connections = 30
	r.WindowSeconds = 60
}

func (r *ConnectionRateLimiting) Verify(configErrs *ConfigErrors) {
	if !r.Enabled {
		return
	}
	if r.Connections <= 0 || r.WindowSeconds <= 0 {
		configErrs.Add(
			"collab_api.rate_limiting: both 'connections' and 'window_seconds' must be positive when rate limiting is enabled. " +
				"Set 'enabled: false' to disable rate limiting, or provide valid positive values for both parameters.",
		)
	}
	for _, ip := range r.ExemptIPAddresses {
		if _, _, err := net.ParseCIDR(ip); err != nil {
			if parsedIP := net.ParseIP(ip); parsedIP == nil {
				configErrs.Add(fmt.Sprintf("invalid IP address or CIDR for config key %q: %s", "collab_api.rate_limiting.exempt_ip_addresses", ip))
			}
		}
	}
}

type Snapshot struct {
	// Minimum seconds between opportunistic snapshots of a live room.
	IntervalSeconds int64 `yaml:"interval_seconds"`

	// Checkpoint after this many admitted edits regardless of the timer.
	AfterEditCount int64 `yaml:"after_edit_count"`

	// Whether update records covered by a fresh snapshot are deleted after
	// the snapshot is written. Only records with id <= the snapshot's
	// last_update_id are ever removed.
	PruneAfterSnapshot *bool `yaml:"prune_after_snapshot"`
}

func (s *Snapshot) Defaults() {
	s.IntervalSeconds = 15
	s.AfterEditCount = 50
	if s.PruneAfterSnapshot == nil {
		prune := true
		s.PruneAfterSnapshot = &prune
	}
}

func (s *Snapshot) Verify(configErrs *ConfigErrors) {
	checkPositive(configErrs, "collab_api.snapshot.interval_seconds", s.IntervalSeconds)
	checkPositive(configErrs, "collab_api.snapshot.after_edit_count", s.AfterEditCount)
}

// Prune reports whether updates folded into a snapshot should be deleted.
func (s *Snapshot) Prune() bool {
	return s.PruneAfterSnapshot != nil && *s.PruneAfterSnapshot
}

type WriteRate struct {
	// Sustained mutation frames per second admitted from one session.
	OpsPerSecond int64 `yaml:"ops_per_second"`
	// Burst capacity on top of the sustained rate.
	Burst int64 `yaml:"burst"`
}

func (w *WriteRate) Defaults() {
	w.OpsPerSecond = 100
	w.Burst = 200
}
