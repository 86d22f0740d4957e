package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir replaces t.Chdir, which needs Go 1.24; this toolchain is older.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "order-entry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
erp:
  base_url: https://acct.suitetalk.test
  account_id: acct
  token: erp-token
  timeout: 60s
  page_size: 500
mirror:
  base_url: https://mirror.test
  token: mirror-token
store:
  path: /var/lib/order-entry/data.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://acct.suitetalk.test", cfg.ERP.BaseURL)
	require.Equal(t, "erp-token", cfg.ERP.Token)
	require.Equal(t, 60*time.Second, cfg.ERP.Timeout)
	require.Equal(t, 500, cfg.ERP.PageSize)
	require.Equal(t, 10000, cfg.ERP.MaxRows, "default applies where the file is silent")
	require.Equal(t, "https://mirror.test", cfg.Mirror.BaseURL)
	require.Equal(t, 30*time.Second, cfg.Mirror.Timeout)
	require.Equal(t, "/var/lib/order-entry/data.db", cfg.Store.Path)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
erp:
  base_url: https://file.test
  token: from-file
mirror:
  base_url: https://mirror.test
`)
	t.Setenv("ORDERENTRY_ERP_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://file.test", cfg.ERP.BaseURL)
	require.Equal(t, "from-env", cfg.ERP.Token)
}

func TestLoadEnvOnly(t *testing.T) {
	chdir(t, t.TempDir()) // no config file in reach
	t.Setenv("ORDERENTRY_ERP_BASE_URL", "https://env.test")
	t.Setenv("ORDERENTRY_MIRROR_BASE_URL", "https://mirror.env.test")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "https://env.test", cfg.ERP.BaseURL)
	require.Equal(t, "https://mirror.env.test", cfg.Mirror.BaseURL)
	require.Equal(t, "order-entry.db", cfg.Store.Path)
	require.Equal(t, 120*time.Second, cfg.ERP.Timeout)
	require.Equal(t, 1000, cfg.ERP.PageSize)
}

func TestLoadMissingRequired(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "erp.base_url")
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
