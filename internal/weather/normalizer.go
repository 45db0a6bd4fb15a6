package weather

import (
	"encoding/json"
	"errors"
	"strings"
)

// UnknownCityName replaces a missing upstream city name.
const UnknownCityName = "Unknown"

var errMissing = errors.New("required field is missing")

// Decompose parses a raw upstream payload into the entities of one reading.
// Only the first element of the "weather" array is kept.
func Decompose(raw []byte) (*Decomposed, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ParseError{Field: typeErr.Field, Err: err}
		}
		return nil, &ParseError{Err: err}
	}
	return p.Decompose()
}

// Decompose validates p and splits it into row fields.
func (p *Payload) Decompose() (*Decomposed, error) {
	switch {
	case len(p.Weather) == 0:
		return nil, &ParseError{Field: "weather", Err: errors.New("expected a non-empty array")}
	case p.Weather[0].Main == nil:
		return nil, &ParseError{Field: "weather[0].main", Err: errMissing}
	case p.Weather[0].Description == nil:
		return nil, &ParseError{Field: "weather[0].description", Err: errMissing}
	case p.Main == nil:
		return nil, &ParseError{Field: "main", Err: errMissing}
	case p.Clouds == nil:
		return nil, &ParseError{Field: "clouds", Err: errMissing}
	case p.Wind == nil:
		return nil, &ParseError{Field: "wind", Err: errMissing}
	case p.Sys == nil:
		return nil, &ParseError{Field: "sys", Err: errMissing}
	case p.Sys.Sunrise == nil:
		return nil, &ParseError{Field: "sys.sunrise", Err: errMissing}
	case p.Sys.Sunset == nil:
		return nil, &ParseError{Field: "sys.sunset", Err: errMissing}
	case p.Dt == nil:
		return nil, &ParseError{Field: "dt", Err: errMissing}
	}

	name := UnknownCityName
	if p.Name != nil && strings.TrimSpace(*p.Name) != "" {
		name = strings.TrimSpace(*p.Name)
	}

	cond := p.Weather[0]
	icon := ""
	if cond.Icon != nil {
		icon = *cond.Icon
	}

	var visibility *float64
	if p.Visibility != nil {
		km := *p.Visibility / 1000
		visibility = &km
	}

	return &Decomposed{
		City: CityFields{
			Name:        name,
			CountryCode: p.Sys.Country,
			UTCOffset:   p.Timezone,
		},
		Condition: ConditionFields{
			Main:        *cond.Main,
			Description: *cond.Description,
			Icon:        icon,
		},
		Reading: ReadingFields{
			Temperature:    p.Main.Temp,
			TemperatureMin: p.Main.TempMin,
			TemperatureMax: p.Main.TempMax,
			FeelsLike:      p.Main.FeelsLike,
			Pressure:       p.Main.Pressure,
			Humidity:       p.Main.Humidity,
			Cloudiness:     p.Clouds.All,
			Visibility:     visibility,
			ObservedAt:     *p.Dt,
		},
		Wind: WindFields{
			Speed: p.Wind.Speed,
			Deg:   p.Wind.Deg,
			Gust:  p.Wind.Gust,
		},
		Sun: SunFields{
			Sunrise: *p.Sys.Sunrise,
			Sunset:  *p.Sys.Sunset,
		},
	}, nil
}
