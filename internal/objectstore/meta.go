package objectstore

import "time"

// Meta is the sidecar written next to every blob.
type Meta struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	SHA256    string    `json:"sha256"`
	StoredAt  time.Time `json:"stored_at"`
}
