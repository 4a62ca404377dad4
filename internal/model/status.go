package model

// SiteStatus is the lifecycle state of a site.
type SiteStatus string

const (
	StatusAbsent         SiteStatus = "absent"
	StatusProvisioning   SiteStatus = "provisioning"
	StatusAppsInstalling SiteStatus = "apps-installing"
	StatusActive         SiteStatus = "active"
	StatusMigrating      SiteStatus = "migrating"
	StatusBackingUp      SiteStatus = "backing-up"
	StatusDeleting       SiteStatus = "deleting"
)

// Transient reports whether the status only exists while an operation runs.
func (s SiteStatus) Transient() bool {
	switch s {
	case StatusProvisioning, StatusAppsInstalling, StatusMigrating, StatusBackingUp, StatusDeleting:
		return true
	}
	return false
}
