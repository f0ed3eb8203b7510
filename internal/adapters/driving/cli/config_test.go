package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sppurge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/storage/memory"
)

func TestConfigCmd_IsConfigOnly(t *testing.T) {
	for _, c := range append(configCmd.Commands(), configCmd) {
		assert.Equal(t, "true", c.Annotations[configOnly], c.Name())
	}
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	svc := newTestServices()
	svc.Config.SharePoint.TenantID = "tenant-123"
	svc.Config.SharePoint.ClientSecret = "super-secret-value"

	out, err := execute(t, svc, "", "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "tenant-123")
	assert.Contains(t, out, "supe...alue")
	assert.NotContains(t, out, "super-secret-value")
	assert.Contains(t, out, "(not set)")
	assert.Contains(t, out, "Missing:")
	assert.Contains(t, out, ":memory:")
}

func TestConfigShow_JSON(t *testing.T) {
	svc := newTestServices()
	svc.Config.Search.APIKey = "short"

	out, err := execute(t, svc, "", "config", "--json")

	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "****", decoded[file.KeySearchAPIKey])
	assert.Equal(t, "sharepoint-index-1", decoded[file.KeyIndexName])
	assert.Equal(t, "purge", decoded[file.KeyIndeterminate])
}

func TestConfigSet(t *testing.T) {
	svc := newTestServices()
	store := svc.ConfigStore.(*memory.ConfigStore)

	out, err := execute(t, svc, "", "config", "set", file.KeyBatchSize, "50")
	require.NoError(t, err)
	assert.Contains(t, out, "purge.batch_size updated.")
	assert.Equal(t, 50, store.GetInt(file.KeyBatchSize))

	_, err = execute(t, svc, "", "config", "set", file.KeySyncFolders, "/ppt,Archive|/2023")
	require.NoError(t, err)
	assert.Equal(t, []string{"/ppt", "Archive|/2023"}, store.GetStringSlice(file.KeySyncFolders))
}

func TestConfigSet_UnknownKey(t *testing.T) {
	_, err := execute(t, newTestServices(), "", "config", "set", "sharepoint.tennant_id", "x")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestConfigSet_InvalidValue(t *testing.T) {
	_, err := execute(t, newTestServices(), "", "config", "set", file.KeyIndeterminate, "sometimes")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge or retain")
}

func TestConfigSet_RequiresTwoArgs(t *testing.T) {
	_, err := execute(t, newTestServices(), "", "config", "set", file.KeyTenantID)

	assert.Error(t, err)
}

func TestConfigGet(t *testing.T) {
	svc := newTestServices()
	svc.ConfigStore = memory.NewConfigStore(map[string]any{
		file.KeyTenantID:     "tenant-123",
		file.KeyClientSecret: "super-secret-value",
	})

	out, err := execute(t, svc, "", "config", "get", file.KeyTenantID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-123\n", out)

	out, err = execute(t, svc, "", "config", "get", file.KeyClientSecret)
	require.NoError(t, err)
	assert.Equal(t, "supe...alue\n", out)

	_, err = execute(t, svc, "", "config", "get", file.KeySiteName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not set")
}

func TestConfigPath(t *testing.T) {
	out, err := execute(t, newTestServices(), "", "config", "path")

	require.NoError(t, err)
	assert.Equal(t, ":memory:\n", out)
}

func TestKnownKey(t *testing.T) {
	assert.True(t, knownKey(file.KeyDataDir))
	assert.True(t, knownKey(file.KeySyncInterval))
	assert.False(t, knownKey("data"))
	assert.False(t, knownKey(""))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not set)", maskSecret(""))
	assert.Equal(t, "****", maskSecret("12345678"))
	assert.Equal(t, "1234...6789", maskSecret("123456789"))
}
