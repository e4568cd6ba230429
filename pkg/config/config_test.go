package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "ghdata", cfg.Database.Name)
	assert.Empty(t, cfg.Orgs)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
orgs = ["acme", "umbrella"]

[github]
login = "octocat"
token = "t0ken"

[database]
host = "db.internal"
port = "5433"
db = "stats"
username = "ghstats"
password = "hunter2"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "octocat", cfg.GitHub.Login)
	assert.Equal(t, "t0ken", cfg.GitHub.Token)
	assert.Equal(t, []string{"acme", "umbrella"}, cfg.Orgs)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "stats", cfg.Database.Name)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[github]
login = "from-file"

[database]
host = "from-file"
`)

	t.Setenv("GITHUB_LOGIN", "from-env")
	t.Setenv("GH_PG_HOST", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GitHub.Login)
	assert.Equal(t, "from-env", cfg.Database.Host)
}

func TestMalformedFileFails(t *testing.T) {
	path := writeConfig(t, `orgs = [not toml`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := Database{Host: "db", Port: "5432", Name: "stats", User: "u", Password: "p"}
	assert.Equal(t,
		"host=db user=u password=p dbname=stats port=5432 sslmode=disable TimeZone=UTC",
		d.DSN())
}
