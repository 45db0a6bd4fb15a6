package frontend

import (
	"fmt"
	"strconv"
	"time"

	"procodus.dev/weather-cache/internal/weather"
)

const iconBaseURL = "https://openweathermap.org/img/wn/"

// WeatherView is the page model for one city's current weather.
type WeatherView struct {
	ObservedAt   time.Time
	Sunrise      time.Time
	Sunset       time.Time
	Temperature  *float64
	FeelsLike    *float64
	TempMin      *float64
	TempMax      *float64
	WindSpeed    *float64
	WindGust     *float64
	VisibilityKm *float64
	Humidity     *int
	Pressure     *int
	Cloudiness   *int
	WindDeg      *int
	City         string
	Country      string
	Condition    string
	Description  string
	Icon         string
}

// newWeatherView flattens an OpenWeather document for display. Times are shown
// in the city's own UTC offset when it is known.
func newWeatherView(p *weather.Payload) WeatherView {
	loc := time.UTC
	if p.Timezone != nil {
		loc = time.FixedZone("", *p.Timezone)
	}
	at := func(unix *int64) time.Time {
		if unix == nil {
			return time.Time{}
		}
		return time.Unix(*unix, 0).In(loc)
	}

	v := WeatherView{
		City:       deref(p.Name),
		ObservedAt: at(p.Dt),
	}
	if len(p.Weather) > 0 {
		w := p.Weather[0]
		v.Condition = deref(w.Main)
		v.Description = deref(w.Description)
		v.Icon = deref(w.Icon)
	}
	if m := p.Main; m != nil {
		v.Temperature, v.FeelsLike = m.Temp, m.FeelsLike
		v.TempMin, v.TempMax = m.TempMin, m.TempMax
		v.Humidity, v.Pressure = m.Humidity, m.Pressure
	}
	if p.Clouds != nil {
		v.Cloudiness = p.Clouds.All
	}
	if w := p.Wind; w != nil {
		v.WindSpeed, v.WindDeg, v.WindGust = w.Speed, w.Deg, w.Gust
	}
	if s := p.Sys; s != nil {
		v.Country = deref(s.Country)
		v.Sunrise, v.Sunset = at(s.Sunrise), at(s.Sunset)
	}
	if p.Visibility != nil {
		km := *p.Visibility / 1000
		v.VisibilityKm = &km
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (v WeatherView) title() string {
	if v.Country == "" {
		return v.City
	}
	return v.City + ", " + v.Country
}

func (v WeatherView) iconURL() string {
	return iconBaseURL + v.Icon + "@2x.png"
}

func formatFloat(f *float64, unit string) string {
	if f == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*f, 'f', 1, 64) + unit
}

func formatInt(i *int, unit string) string {
	if i == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d%s", *i, unit)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format("15:04 UTC-07:00")
}
