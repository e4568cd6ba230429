package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// GitHub holds the credentials and endpoint for the remote API.
type GitHub struct {
	APIURL string `toml:"api_url"`
	Login  string `toml:"login"`
	Token  string `toml:"token"`
}

// Database holds the PostgreSQL connection settings.
type Database struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Name     string `toml:"db"`
	User     string `toml:"username"`
	Password string `toml:"password"`
}

// Config is the full runtime configuration for a sync run.
type Config struct {
	GitHub   GitHub   `toml:"github"`
	Database Database `toml:"database"`
	Orgs     []string `toml:"orgs"`
}

// DSN builds the GORM PostgreSQL connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

// Load reads the TOML config file at path and applies environment variable
// overrides. A missing file is not an error; everything can come from the
// environment. If path is empty, GH_DATA_CONFIG or "config.toml" is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("GH_DATA_CONFIG", "config.toml")
	}

	cfg := &Config{
		GitHub: GitHub{
			APIURL: "https://api.github.com",
		},
		Database: Database{
			Host: "localhost",
			Port: "5432",
			Name: "ghdata",
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.GitHub.Login = getEnv("GITHUB_LOGIN", cfg.GitHub.Login)
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.Database.Host = getEnv("GH_PG_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("GH_PG_PORT", cfg.Database.Port)
	cfg.Database.Name = getEnv("GH_PG_DB", cfg.Database.Name)
	cfg.Database.User = getEnv("GH_PG_UN", cfg.Database.User)
	cfg.Database.Password = getEnv("GH_PG_PW", cfg.Database.Password)

	return cfg, nil
}

// getEnv fetches an environment variable with a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
