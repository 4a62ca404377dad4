package request

type CreateSite struct {
	SiteName      string   `json:"site_name" validate:"required,sitename"`
	AdminEmail    string   `json:"admin_email" validate:"required,email"`
	AdminPassword string   `json:"admin_password" validate:"omitempty,min=8,max=128"`
	Apps          []string `json:"apps" validate:"omitempty,max=32,dive,appname"`
}

// Backup defaults to including files when IncludeFiles is omitted.
type Backup struct {
	IncludeFiles *bool `json:"include_files"`
}

func (b Backup) WithFiles() bool {
	return b.IncludeFiles == nil || *b.IncludeFiles
}
