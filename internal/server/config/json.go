package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/timesheet/internal/flagx"
	"github.com/dmitrijs2005/timesheet/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
// Zero values leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	CookieSecure                 *bool          `json:"cookie_secure"`
	LogLevel                     string         `json:"log_level"`

	NotionAPIKey      string `json:"notion_api_key"`
	NotionBaseURL     string `json:"notion_base_url"`
	NotionVersion     string `json:"notion_version"`
	NotionEmployeesDB string `json:"notion_employees_db"`
	NotionProjectsDB  string `json:"notion_projects_db"`
	NotionTasksDB     string `json:"notion_tasks_db"`
	NotionTimesheetDB string `json:"notion_timesheet_db"`

	WorkspaceSchemaFile    string         `json:"workspace_schema_file"`
	WorkspaceConcurrency   int            `json:"workspace_concurrency"`
	WorkspaceRatePerSecond float64        `json:"workspace_rate_per_second"`
	WorkspaceTimeout       timex.Duration `json:"workspace_timeout"`

	ReconcileInterval    timex.Duration `json:"reconcile_interval"`
	ReconcileStaleAfter  timex.Duration `json:"reconcile_stale_after"`
	ReconcileMaxAttempts int            `json:"reconcile_max_attempts"`

	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson loads the file named by -c/-config (or $TIMESHEET_CONFIG) into
// config. No file means no changes; an unreadable or invalid file panics,
// the same way bad flags do.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	if err := loadJSONFile(jsonConfigFile, config); err != nil {
		panic(err)
	}
}

// loadJSONFile reads path, strips comments and trailing commas, and overlays
// the non-zero values onto config.
func loadJSONFile(path string, config *Config) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(jsonc.ToJSON(file), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.NotionAPIKey, c.NotionAPIKey)
	setString(&config.NotionBaseURL, c.NotionBaseURL)
	setString(&config.NotionVersion, c.NotionVersion)
	setString(&config.NotionEmployeesDB, c.NotionEmployeesDB)
	setString(&config.NotionProjectsDB, c.NotionProjectsDB)
	setString(&config.NotionTasksDB, c.NotionTasksDB)
	setString(&config.NotionTimesheetDB, c.NotionTimesheetDB)

	setString(&config.WorkspaceSchemaFile, c.WorkspaceSchemaFile)
	if c.WorkspaceConcurrency != 0 {
		config.WorkspaceConcurrency = c.WorkspaceConcurrency
	}
	if c.WorkspaceRatePerSecond != 0 {
		config.WorkspaceRatePerSecond = c.WorkspaceRatePerSecond
	}
	setDuration(&config.WorkspaceTimeout, c.WorkspaceTimeout)

	setDuration(&config.ReconcileInterval, c.ReconcileInterval)
	setDuration(&config.ReconcileStaleAfter, c.ReconcileStaleAfter)
	if c.ReconcileMaxAttempts != 0 {
		config.ReconcileMaxAttempts = c.ReconcileMaxAttempts
	}

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
