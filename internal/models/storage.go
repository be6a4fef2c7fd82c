package models

import "time"

// SystemKV is a non-domain key-value entry such as the refresh marker.
type SystemKV struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
