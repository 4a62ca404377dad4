package model

import "time"

// UploadState tracks whether a local archive was also copied to remote storage.
type UploadState string

const (
	UploadPending       UploadState = "pending"
	UploadUploaded      UploadState = "uploaded"
	UploadFailed        UploadState = "failed"
	UploadNotApplicable UploadState = "not-applicable"
)

// BackupRecord describes one backup archive. It is identified by
// (Site, CreatedAt); the local archive is authoritative whatever the upload
// state says.
type BackupRecord struct {
	Site         string      `json:"site_name"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	IncludeFiles bool        `json:"include_files"`
	ArchiveName  string      `json:"archive_name"`
	ArchivePath  string      `json:"archive_path"`
	SizeBytes    int64       `json:"size_bytes"`
	UploadState  UploadState `json:"upload_state,omitempty"`
	RemoteKey    string      `json:"remote_key,omitempty"`
	UploadError  string      `json:"upload_error,omitempty"`
}
