package config

import (
	"os"
	"strconv"
)

// Environment variables override secrets and deployment-specific IDs so
// they can stay out of config files.
const (
	EnvDatabaseDSN       = "TIMESHEET_DATABASE_DSN"
	EnvSecretKey         = "TIMESHEET_SECRET_KEY"
	EnvCookieSecure      = "TIMESHEET_COOKIE_SECURE"
	EnvNotionAPIKey      = "TIMESHEET_NOTION_API_KEY"
	EnvNotionEmployeesDB = "TIMESHEET_NOTION_EMPLOYEES_DB"
	EnvNotionProjectsDB  = "TIMESHEET_NOTION_PROJECTS_DB"
	EnvNotionTasksDB     = "TIMESHEET_NOTION_TASKS_DB"
	EnvNotionTimesheetDB = "TIMESHEET_NOTION_TIMESHEET_DB"
	EnvS3RootUser        = "TIMESHEET_S3_ROOT_USER"
	EnvS3RootPassword    = "TIMESHEET_S3_ROOT_PASSWORD"
)

func parseEnv(config *Config) {
	for name, dst := range map[string]*string{
		EnvDatabaseDSN:       &config.DatabaseDSN,
		EnvSecretKey:         &config.SecretKey,
		EnvNotionAPIKey:      &config.NotionAPIKey,
		EnvNotionEmployeesDB: &config.NotionEmployeesDB,
		EnvNotionProjectsDB:  &config.NotionProjectsDB,
		EnvNotionTasksDB:     &config.NotionTasksDB,
		EnvNotionTimesheetDB: &config.NotionTimesheetDB,
		EnvS3RootUser:        &config.S3RootUser,
		EnvS3RootPassword:    &config.S3RootPassword,
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvCookieSecure); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.CookieSecure = b
		}
	}
}
