package domain

import "time"

// ChannelConfig is the persisted enable flag for one alert channel
type ChannelConfig struct {
	Name      string    `json:"name"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}
