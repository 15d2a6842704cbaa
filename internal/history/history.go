package history

import (
	"context"
	"time"

	"github.com/ikayroni/weather-api/internal/models"
)

// Record is one persisted weather lookup. A copy of the served snapshot plus
// the client info captured at request time.
type Record struct {
	ID            int64     `json:"id"`
	City          string    `json:"city"`
	Country       string    `json:"country,omitempty"`
	Temperature   float64   `json:"temperature"`
	FeelsLike     float64   `json:"feels_like"`
	Humidity      int       `json:"humidity"`
	Pressure      *int      `json:"pressure,omitempty"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon,omitempty"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection *int      `json:"wind_direction,omitempty"`
	Visibility    *int      `json:"visibility,omitempty"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	QueriedAt     time.Time `json:"queried_at"`
}

// FromQuery builds a Record from a served snapshot and client info.
func FromQuery(q models.WeatherQuery, ipAddress, userAgent string) Record {
	return Record{
		City:          q.City,
		Country:       q.Country,
		Temperature:   q.Temperature,
		FeelsLike:     q.FeelsLike,
		Humidity:      q.Humidity,
		Pressure:      q.Pressure,
		Description:   q.Description,
		Icon:          q.Icon,
		WindSpeed:     q.WindSpeed,
		WindDirection: q.WindDirection,
		Visibility:    q.Visibility,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		QueriedAt:     q.QueriedAt,
	}
}

// Store persists lookup records. Insert is called only from the async
// recorder worker; List serves the history endpoint; Prune keeps the newest
// N rows.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	Prune(ctx context.Context, keep int) (int64, error)
	Close() error
}
