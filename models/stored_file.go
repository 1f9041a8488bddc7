package models

import "time"

// StoredFile is one image inside a collection. The filesystem entry is the only record of it.
type StoredFile struct {
	Filename   string    `json:"filename"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"` // file mtime
}
