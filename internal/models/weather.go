package models

import "time"

// WeatherQuery is the normalized current-conditions record returned to
// clients. Produced by the provider client or reconstructed from cache;
// immutable once built. Optional numeric fields are pointers so a provider
// omitting them serializes as absent rather than as zero.
type WeatherQuery struct {
	City          string    `json:"city"`
	Country       string    `json:"country,omitempty"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feels_like"`
	Humidity      int       `json:"humidity"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon,omitempty"`
	Pressure      *int      `json:"pressure,omitempty"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection *int      `json:"wind_direction,omitempty"`
	Visibility    *int      `json:"visibility,omitempty"`
	QueriedAt     time.Time `json:"queried_at"`
	Cached        bool      `json:"cached"` // true when served from the cache gateway
}
