// Package weather implements the cache-through pipeline for current weather by city:
// a relational store acts as a time-boxed cache in front of the OpenWeather API.
package weather

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// City is created on first sighting and never updated.
type City struct {
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	CountryCode *string   `gorm:"size:8"`
	UTCOffset   *int      `gorm:"column:utc_offset"`
	Name        string    `gorm:"size:128;not null"`
	NameKey     string    `gorm:"size:128;not null;uniqueIndex:idx_cities_name_key"`
	ID          uint      `gorm:"primaryKey"`
}

// TableName specifies the table name for the City model.
func (City) TableName() string {
	return "cities"
}

// Condition is shared by content across cities. Icon is captured on create only.
type Condition struct {
	Main           string `gorm:"size:64;not null"`
	Description    string `gorm:"size:255;not null"`
	Icon           string `gorm:"size:16"`
	MainKey        string `gorm:"size:64;not null;uniqueIndex:idx_conditions_key,priority:1"`
	DescriptionKey string `gorm:"size:255;not null;uniqueIndex:idx_conditions_key,priority:2"`
	ID             uint   `gorm:"primaryKey"`
}

// TableName specifies the table name for the Condition model.
func (Condition) TableName() string {
	return "conditions"
}

// CurrentReading is one accepted upstream observation. Nil fields were absent upstream.
type CurrentReading struct {
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	City           *City      `gorm:"foreignKey:CityID"`
	Condition      *Condition `gorm:"foreignKey:ConditionID"`
	Temperature    *float64
	TemperatureMin *float64
	TemperatureMax *float64
	FeelsLike      *float64
	Pressure       *int
	Humidity       *int
	Cloudiness     *int
	// Visibility is in kilometers.
	Visibility  *float64
	Winds       []Wind `gorm:"foreignKey:ReadingID"`
	Suns        []Sun  `gorm:"foreignKey:ReadingID"`
	ObservedAt  int64  `gorm:"not null;index:idx_readings_city_observed,priority:2"`
	CityID      uint   `gorm:"not null;index:idx_readings_city_observed,priority:1"`
	ConditionID uint   `gorm:"not null;index"`
	ID          uint   `gorm:"primaryKey"`
}

// TableName specifies the table name for the CurrentReading model.
func (CurrentReading) TableName() string {
	return "current_readings"
}

// Wind belongs to exactly one reading.
type Wind struct {
	Speed     *float64
	Deg       *int
	Gust      *float64
	ReadingID uint `gorm:"not null;index"`
	ID        uint `gorm:"primaryKey"`
}

// TableName specifies the table name for the Wind model.
func (Wind) TableName() string {
	return "winds"
}

// Sun belongs to exactly one reading.
type Sun struct {
	Sunrise   int64 `gorm:"not null"`
	Sunset    int64 `gorm:"not null"`
	ReadingID uint  `gorm:"not null;index"`
	ID        uint  `gorm:"primaryKey"`
}

// TableName specifies the table name for the Sun model.
func (Sun) TableName() string {
	return "suns"
}

// Models returns every persisted model in migration order.
func Models() []any {
	return []any{
		&City{},
		&Condition{},
		&CurrentReading{},
		&Wind{},
		&Sun{},
	}
}

// foldKey returns the case-insensitive lookup key for a name.
// A Caser keeps state, so one is built per call.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
