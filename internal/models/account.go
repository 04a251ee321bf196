package models

import "time"

type Account struct {
	ID              string    `json:"id"`
	Settings        string    `json:"settings"`
	SettingsVersion int64     `json:"settings_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
