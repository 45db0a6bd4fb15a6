package weather

import (
	"encoding/json"
	"errors"
	"math"
)

// defaultVisibilityMeters is rendered when a reading has no visibility.
const defaultVisibilityMeters = 10000

type renderedPayload struct {
	Wind       *renderedWind       `json:"wind,omitempty"`
	Sys        *renderedSys        `json:"sys,omitempty"`
	Timezone   *int                `json:"timezone"`
	Clouds     renderedClouds      `json:"clouds"`
	Name       string              `json:"name"`
	Weather    []renderedCondition `json:"weather"`
	Main       renderedMain        `json:"main"`
	Visibility int64               `json:"visibility"`
	Dt         int64               `json:"dt"`
	ID         uint                `json:"id"`
	Cod        int                 `json:"cod"`
}

type renderedCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	ID          uint   `json:"id"`
}

type renderedMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Pressure  *int     `json:"pressure"`
	Humidity  *int     `json:"humidity"`
}

type renderedClouds struct {
	All *int `json:"all"`
}

type renderedWind struct {
	Speed *float64 `json:"speed"`
	Deg   *int     `json:"deg"`
	Gust  *float64 `json:"gust"`
}

type renderedSys struct {
	Country *string `json:"country"`
	Sunrise int64   `json:"sunrise"`
	Sunset  int64   `json:"sunset"`
}

// Render rebuilds an upstream-shaped document from a stored reading. The reading
// must have City, Condition, Winds and Suns loaded. The "weather" array always has
// exactly one element, and "id" fields carry store row ids.
func Render(reading *CurrentReading) ([]byte, error) {
	if reading == nil {
		return nil, errors.New("reading cannot be nil")
	}

	out := renderedPayload{
		Weather: []renderedCondition{{}},
		Main: renderedMain{
			Temp:      reading.Temperature,
			FeelsLike: reading.FeelsLike,
			TempMin:   reading.TemperatureMin,
			TempMax:   reading.TemperatureMax,
			Pressure:  reading.Pressure,
			Humidity:  reading.Humidity,
		},
		Clouds:     renderedClouds{All: reading.Cloudiness},
		Visibility: defaultVisibilityMeters,
		Dt:         reading.ObservedAt,
		ID:         reading.CityID,
		Cod:        200,
	}

	if reading.Visibility != nil {
		out.Visibility = int64(math.Round(*reading.Visibility * 1000))
	}

	if c := reading.Condition; c != nil {
		out.Weather[0] = renderedCondition{
			ID:          c.ID,
			Main:        c.Main,
			Description: c.Description,
			Icon:        c.Icon,
		}
	}

	var country *string
	if city := reading.City; city != nil {
		out.Name = city.Name
		out.Timezone = city.UTCOffset
		country = city.CountryCode
	}

	if len(reading.Winds) > 0 {
		w := reading.Winds[0]
		out.Wind = &renderedWind{Speed: w.Speed, Deg: w.Deg, Gust: w.Gust}
	}

	if len(reading.Suns) > 0 {
		s := reading.Suns[0]
		out.Sys = &renderedSys{Country: country, Sunrise: s.Sunrise, Sunset: s.Sunset}
	}

	return json.Marshal(out)
}
