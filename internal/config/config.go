package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the reverse geocoding service.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server.
// - ProviderType: The type of geocoding provider to use (nominatim, google).
// - APIKey: The API key for accessing external services (required for Google).
// - Language: Preferred language of resolved addresses.
// - Workers: The number of concurrent workers for processing requests.
// - Interval: The duration between processing intervals.
// - Nominatim: Settings of the Nominatim client.
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env          string          `yaml:"env"`               // Env is the current environment: local, development, production.
	Port         int             `yaml:"monitoring.port"`   // Port is the monitoring server port.
	ProviderType string          `yaml:"provider.type"`     // ProviderType specifies which geocoding provider to use
	APIKey       string          `yaml:"provider.api_key"`  // The API key for accessing external services.
	Language     string          `yaml:"provider.language"` // Preferred language of resolved addresses.
	Workers      int             `yaml:"geocoder.workers"`  // The number of concurrent workers for processing requests.
	Interval     time.Duration   `yaml:"geocoder.interval"` // The duration between processing intervals.
	Nominatim    NominatimConfig `yaml:"nominatim"`         // Nominatim holds the Nominatim client configuration
	Database     PostgresConfig  `yaml:"postgres"`          // Database holds the postgres database configuration
}

// NominatimConfig holds the settings of the Nominatim client.
type NominatimConfig struct {
	BaseURL   string        `yaml:"base_url"`   // BaseURL of the server, the public instance by default.
	UserAgent string        `yaml:"user_agent"` // UserAgent identifies this deployment to the server.
	Email     string        `yaml:"email"`      // Email is a contact address sent with every request.
	Zoom      uint8         `yaml:"zoom"`       // Zoom is the level of detail of reverse lookups, 0-18.
	Timeout   time.Duration `yaml:"timeout"`    // Timeout of a single HTTP request.
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string `yaml:"host"`                        // Host is the database server address.
	Port     string `yaml:"port"     env-default:"5432"` // Port is the database server port.
	User     string `yaml:"user"`                        // User is the database user.
	Password string `yaml:"password"`                    // Password is the database user's password.
	Name     string `yaml:"db_name"`                     // Name is the name of the database.
}

// DSN returns the connection string for pgx.
func (p PostgresConfig) DSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.Name,
	}
	return dsn.String()
}

const maxZoom = 18

var defaults = map[string]string{
	"CARTOGRAPHER_ENV":           "production",
	"CARTOGRAPHER_HEALTH_PORT":   "8080",
	"CARTOGRAPHER_PROVIDER_TYPE": "nominatim",
	"CARTOGRAPHER_WORKERS":       "1",
	"CARTOGRAPHER_INTERVAL":      "10m",
	"NOMINATIM_ZOOM":             "18",
	"NOMINATIM_TIMEOUT":          "10s",
	"DB_PORT":                    "5432",
}

// MustLoad loads the configuration and panics if a value cannot be parsed.
//
// Values come from the process environment first, then from the dotenv file
// named by CARTOGRAPHER_ENV_FILE (".env" by default), then from built-in defaults.
func MustLoad() *Config {
	vpr := viper.New()
	for key, value := range defaults {
		vpr.SetDefault(key, value)
	}

	// A missing dotenv file is normal in containers.
	if fileValues, err := godotenv.Read(setDefaultEnv("CARTOGRAPHER_ENV_FILE", ".env")); err == nil {
		for key, value := range fileValues {
			vpr.SetDefault(key, value)
		}
	}

	vpr.AutomaticEnv()

	interval, err := time.ParseDuration(vpr.GetString("CARTOGRAPHER_INTERVAL"))
	if err != nil {
		panic("failed to parse interval from configuration")
	}

	healthPort, err := strconv.Atoi(vpr.GetString("CARTOGRAPHER_HEALTH_PORT"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	workers, err := strconv.Atoi(vpr.GetString("CARTOGRAPHER_WORKERS"))
	if err != nil || workers < 1 {
		panic("failed to parse workers from configuration, must be a positive integer")
	}

	zoom, err := strconv.ParseUint(vpr.GetString("NOMINATIM_ZOOM"), 10, 8)
	if err != nil || zoom > maxZoom {
		panic("failed to parse nominatim zoom from configuration, must be between 0 and 18")
	}

	timeout, err := time.ParseDuration(vpr.GetString("NOMINATIM_TIMEOUT"))
	if err != nil || timeout <= 0 {
		panic("failed to parse nominatim timeout from configuration")
	}

	return &Config{
		Env:          vpr.GetString("CARTOGRAPHER_ENV"),
		Port:         healthPort,
		ProviderType: vpr.GetString("CARTOGRAPHER_PROVIDER_TYPE"),
		APIKey:       vpr.GetString("CARTOGRAPHER_PROVIDER_KEY"),
		Language:     vpr.GetString("CARTOGRAPHER_LANGUAGE"),
		Workers:      workers,
		Interval:     interval,
		Nominatim: NominatimConfig{
			BaseURL:   vpr.GetString("NOMINATIM_BASE_URL"),
			UserAgent: vpr.GetString("NOMINATIM_USER_AGENT"),
			Email:     vpr.GetString("NOMINATIM_EMAIL"),
			Zoom:      uint8(zoom),
			Timeout:   timeout,
		},
		Database: PostgresConfig{
			Host:     vpr.GetString("DB_HOST"),
			Port:     vpr.GetString("DB_PORT"),
			User:     vpr.GetString("DB_USERNAME"),
			Password: vpr.GetString("DB_PASSWORD"),
			Name:     vpr.GetString("DB_NAME"),
		},
	}
}

func setDefaultEnv(key, override string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = override
	}

	return value
}
