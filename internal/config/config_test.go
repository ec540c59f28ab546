package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy.conf.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr", "contract_id": "1111111"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Hostname)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 50, cfg.Publisher.ChunkSize)
	assert.Equal(t, 100.0, cfg.Publisher.RecordsPerSec)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Sge.IsHomologation())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 9090},
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr", "environment": "production"},
		"streams": {
			"inbox_dir": "/var/spool/sge/inbox",
			"aes_keys": [{"iv": "000102030405060708090a0b0c0d0e0f", "key": "00112233445566778899aabbccddeeff"}]
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Sge.IsHomologation())
	require.Len(t, cfg.Streams.AesKeys, 1)
	assert.Equal(t, "/var/spool/sge/inbox", cfg.Streams.InboxDir)
}

func TestLoadRejectsMissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, `{"sge": {"login": "proxy@example.fr"}}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.url")
}

func TestLoadRejectsIncompleteAesKey(t *testing.T) {
	path := writeConfig(t, `{
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr"},
		"streams": {"aes_keys": [{"iv": "000102030405060708090a0b0c0d0e0f"}]}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aes_keys")
}

func TestLoadRejectsNonPositivePublisherTuning(t *testing.T) {
	path := writeConfig(t, `{
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr"},
		"publisher": {"chunk_size": 0}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_size")

	path = writeConfig(t, `{
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr"},
		"publisher": {"records_per_sec": -1}
	}`)

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "records_per_sec")
}

func TestAbspathResolvesAgainstConfigDir(t *testing.T) {
	path := writeConfig(t, `{
		"db": {"url": "postgres://sgeproxy@localhost/sgeproxy"},
		"sge": {"login": "proxy@example.fr"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "client.crt"), cfg.Abspath("client.crt"))
	assert.Equal(t, "/etc/sge/client.crt", cfg.Abspath("/etc/sge/client.crt"))
}
