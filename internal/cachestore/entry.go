package cachestore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	SchemaVersion = 2

	currentPrefix = "cache:v2:"
	legacyPrefix  = "video:"
)

// Entry is one derived per-video record.
type Entry struct {
	Key           string    `json:"key"`
	Payload       []byte    `json:"payload"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	SchemaVersion int       `json:"schema_version"`
}

func (e Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// legacyEntry is the layout written before expiry and versioning existed.
type legacyEntry struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeKey trims, lower-cases and collapses inner whitespace.
func NormalizeKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), " ")
}

func currentKey(key string) string { return currentPrefix + NormalizeKey(key) }

func decodeEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, err
	}
	if e.SchemaVersion != SchemaVersion {
		return Entry{}, fmt.Errorf("schema version %d, want %d", e.SchemaVersion, SchemaVersion)
	}
	if e.SizeBytes != int64(len(e.Payload)) {
		return Entry{}, fmt.Errorf("size %d does not match payload of %d bytes", e.SizeBytes, len(e.Payload))
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		return Entry{}, fmt.Errorf("expires_at %s not after created_at %s", e.ExpiresAt, e.CreatedAt)
	}
	return e, nil
}

func decodeLegacy(raw []byte) (legacyEntry, error) {
	var l legacyEntry
	if err := json.Unmarshal(raw, &l); err != nil {
		return legacyEntry{}, err
	}
	return l, nil
}
