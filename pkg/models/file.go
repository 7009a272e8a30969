package models

import "time"

// File is an uploaded document. The bytes behind StoragePath are transient;
// the row outlives them as an audit record.
type File struct {
	ID               int64      `db:"id"                json:"id"`
	Filename         string     `db:"filename"          json:"filename"`
	OriginalFilename string     `db:"original_filename" json:"original_filename"`
	StoragePath      string     `db:"storage_path"      json:"storage_path"`
	SizeBytes        int64      `db:"size_bytes"        json:"size_bytes"`
	ContentType      string     `db:"content_type"      json:"content_type"`
	Checksum         string     `db:"checksum"          json:"checksum"`
	ClientIP         *string    `db:"client_ip"         json:"client_ip,omitempty"`
	UserAgent        *string    `db:"user_agent"        json:"user_agent,omitempty"`
	IsProcessed      bool       `db:"is_processed"      json:"is_processed"`
	IsDeleted        bool       `db:"is_deleted"        json:"-"`
	UploadedAt       time.Time  `db:"uploaded_at"       json:"uploaded_at"`
	ProcessedAt      *time.Time `db:"processed_at"      json:"processed_at,omitempty"`
}
