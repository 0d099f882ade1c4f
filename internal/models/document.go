// Package models defines the domain types for Dagaz.
package models

import "time"

// DocumentInfo is a lightweight representation returned by list and stat
// operations.
type DocumentInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
