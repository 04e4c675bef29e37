package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datahub/pkg/types"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
security_account: "000011112222"
region: eu-west-1
tables:
  datasets: my-datasets
enforce_metadata_sync: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, types.AccountID("000011112222"), cfg.SecurityAccount)
	assert.Equal(t, types.Region("eu-west-1"), cfg.Region)
	assert.True(t, cfg.EnforceMetadataSync)

	t.Run("defaults survive partial files", func(t *testing.T) {
		assert.Equal(t, "aws", cfg.Partition)
		assert.Equal(t, "my-datasets", cfg.Tables.Datasets)
		assert.Equal(t, "datahub-locks", cfg.Tables.Locks)
	})
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATAHUB_REGION", "eu-central-1")
	t.Setenv("DATAHUB_LOCKS_TABLE", "ops-locks")
	t.Setenv("DATAHUB_ENFORCE_METADATA_SYNC", "true")

	cfg := LoadFromEnv()
	assert.Equal(t, types.Region("eu-central-1"), cfg.Region)
	assert.Equal(t, "ops-locks", cfg.Tables.Locks)
	assert.True(t, cfg.EnforceMetadataSync)
	assert.Equal(t, "datahub-datasets", cfg.Tables.Datasets, "unset vars keep defaults")
}
