package model

import "time"

type Site struct {
	Name        string       `json:"site_name"`
	AdminEmail  string       `json:"admin_email,omitempty"`
	Apps        []string     `json:"apps"`
	AppInstalls []AppInstall `json:"app_installs,omitempty"`
	Status      SiteStatus   `json:"status"`
	CreatedAt   *time.Time   `json:"created_at,omitempty"`
}

// AppInstall is the outcome of installing one app on a freshly created site.
// Apps are independent: a failed install leaves the site active.
type AppInstall struct {
	App       string `json:"app"`
	Installed bool   `json:"installed"`
	Output    string `json:"output,omitempty"`
}

// MigrationResult is returned by a successful migrate run.
type MigrationResult struct {
	Site        string    `json:"site_name"`
	CompletedAt time.Time `json:"migration_completed"`
}
