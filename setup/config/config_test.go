package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v2"
)

func TestLoadConfigMinimal(t *testing.T) {
	_, err := loadConfig("/tmp", []byte(`
version: 1
global:
  instance_name: test1
  database:
    connection_string: file:pagesync.db
workspace_api:
  auth:
    jwt_secret: notasecret
`), func(string) ([]byte, error) {
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestLoadConfigWrongVersion(t *testing.T) {
	_, err := loadConfig("/tmp", []byte(`
version: 0
global:
  database:
    connection_string: file:pagesync.db
workspace_api:
  auth:
    jwt_secret: notasecret
`), func(string) ([]byte, error) {
		return nil, nil
	})
	assert.Error(t, err)
}

func TestRateLimitingDefaults(t *testing.T) {
	var r ConnectionRateLimiting
	r.Defaults()

	assert.True(t, r.Enabled)
	assert.Equal(t, int64(30), r.Connections)
	assert.Equal(t, int64(60), r.WindowSeconds)
}

func TestRateLimitingVerifyRejectsNonPositive(t *testing.T) {
	rateLimiting := ConnectionRateLimiting{
		Enabled:       true,
		Connections:   0,
		WindowSeconds: 60,
	}

	var configErrs ConfigErrors
	rateLimiting.Verify(&configErrs)

	assert.Contains(t, configErrs[0], "both 'connections' and 'window_seconds' must be positive")
}

func TestRateLimitingVerifyExemptIPAddresses(t *testing.T) {
	rateLimiting := ConnectionRateLimiting{
		Enabled:           true,
		Connections:       30,
		WindowSeconds:     60,
		ExemptIPAddresses: []string{"127.0.0.1", "192.168.1.0/24"},
	}

	var configErrs ConfigErrors
	rateLimiting.Verify(&configErrs)

	assert.Empty(t, configErrs)
}

func TestRateLimitingVerifyExemptIPAddressesInvalid(t *testing.T) {
	rateLimiting := ConnectionRateLimiting{
		Enabled:           true,
		Connections:       30,
		WindowSeconds:     60,
		ExemptIPAddresses: []string{"not-an-ip"},
	}

	var configErrs ConfigErrors
	rateLimiting.Verify(&configErrs)

	assert.Contains(t, configErrs, `invalid IP address or CIDR for config key "collab_api.rate_limiting.exempt_ip_addresses": not-an-ip`)
}

func TestSnapshotDefaults(t *testing.T) {
	var s Snapshot
	s.Defaults()

	assert.Equal(t, int64(15), s.IntervalSeconds)
	assert.Equal(t, int64(50), s.AfterEditCount)
	assert.True(t, s.Prune())
}

func TestSnapshotPruneDisabledByYAML(t *testing.T) {
	input := `
interval_seconds: 30
after_edit_count: 10
prune_after_snapshot: false
`
	// Same order as loadConfig: defaults first, then the file on top.
	var s Snapshot
	s.Defaults()
	err := yaml.Unmarshal([]byte(input), &s)
	assert.NoError(t, err)

	assert.Equal(t, int64(30), s.IntervalSeconds)
	assert.Equal(t, int64(10), s.AfterEditCount)
	assert.False(t, s.Prune())
}

func TestBackplaneVerify(t *testing.T) {
	tests := []struct {
		name      string
		backplane Backplane
		wantErrs  int
	}{
		{"jetstream ok", Backplane{Type: BackplaneJetStream}, 0},
		{"none ok", Backplane{Type: BackplaneNone}, 0},
		{"redis needs address", Backplane{Type: BackplaneRedis}, 1},
		{"redis with address", Backplane{Type: BackplaneRedis, RedisAddress: "localhost:6379"}, 0},
		{"unknown type", Backplane{Type: "carrier-pigeon"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var configErrs ConfigErrors
			tt.backplane.Verify(&configErrs)
			assert.Len(t, configErrs, tt.wantErrs)
		})
	}
}

func TestDataUnitUnmarshal(t *testing.T) {
	var out struct {
		Size DataUnit `yaml:"size"`
	}
	for raw, want := range map[string]DataUnit{
		"size: 1024":  1024,
		"size: 64kb":  64 * 1024,
		"size: 16mb":  16 * 1024 * 1024,
		"size: 1gb":   1024 * 1024 * 1024,
		"size: 512k":  512 * 1024,
	} {
		err := yaml.Unmarshal([]byte(raw), &out)
		assert.NoError(t, err, raw)
		assert.Equal(t, want, out.Size, raw)
	}

	err := yaml.Unmarshal([]byte("size: lots"), &out)
	assert.Error(t, err)
}
