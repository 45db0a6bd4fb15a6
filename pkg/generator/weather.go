// Package generator produces synthetic OpenWeather current-weather documents.
package generator

import (
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/text/cases"
)

// City is a fake city. The same name always yields the same country, position
// and offset.
type City struct {
	Name      string  `fake:"-"`
	Country   string  `fake:"{countryabr}"`
	Latitude  float64 `fake:"{latitude}"`
	Longitude float64 `fake:"{longitude}"`
	ID        int     `fake:"{number:100000,9999999}"`
	// Timezone is the offset from UTC in seconds.
	Timezone int `fake:"-"`
}

// NewCity returns the fake city for name.
func NewCity(name string) *City {
	faker := gofakeit.New(seedFor(name))

	var c City
	if err := faker.Struct(&c); err != nil {
		return nil
	}
	c.Name = strings.TrimSpace(name)
	// Whole hours keep the offset within the range real cities use.
	c.Timezone = int(math.Round(c.Longitude/15)) * 3600
	return &c
}

// RandomCity returns a fake city with a random name.
func RandomCity() *City {
	return NewCity(gofakeit.City())
}

func seedFor(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(cases.Fold().String(strings.TrimSpace(name))))
	return h.Sum64()
}

// condition is one entry of the OpenWeather condition table.
type condition struct {
	main        string
	description string
	icon        string
	id          int
}

var (
	clearSky       = condition{id: 800, main: "Clear", description: "clear sky", icon: "01"}
	fewClouds      = condition{id: 801, main: "Clouds", description: "few clouds", icon: "02"}
	scatteredCloud = condition{id: 802, main: "Clouds", description: "scattered clouds", icon: "03"}
	overcast       = condition{id: 804, main: "Clouds", description: "overcast clouds", icon: "04"}
	lightRain      = condition{id: 500, main: "Rain", description: "light rain", icon: "10"}
	lightSnow      = condition{id: 600, main: "Snow", description: "light snow", icon: "13"}
	mist           = condition{id: 701, main: "Mist", description: "mist", icon: "50"}
)

// WeatherGenerator produces plausible, slowly drifting weather for one city.
// It is safe for concurrent use.
type WeatherGenerator struct {
	mu               sync.Mutex
	faker            *gofakeit.Faker
	city             *City
	baselineTemp     float64
	baselineHumidity float64
	baselinePressure float64
	noise            float64
	pressureTrend    float64 // Simulates weather system movement
	lastPressure     float64
}

// NewWeatherGenerator creates a generator whose baselines depend on the city.
func NewWeatherGenerator(city *City) *WeatherGenerator {
	faker := gofakeit.New(seedFor(city.Name))
	// Colder towards the poles.
	baseline := 28 - math.Abs(city.Latitude)*0.45
	return &WeatherGenerator{
		faker:            faker,
		city:             city,
		baselineTemp:     baseline + faker.Float64Range(-3, 3),
		baselineHumidity: faker.Float64Range(50, 70),
		baselinePressure: 1013.0 + faker.Float64Range(-10, 10),
		noise:            faker.Float64Range(0, 2),
		pressureTrend:    faker.Float64Range(-0.25, 0.25),
		lastPressure:     1013.0,
	}
}

// City returns the city this generator describes.
func (g *WeatherGenerator) City() *City {
	return g.city
}

func (g *WeatherGenerator) localHour(t time.Time) float64 {
	local := t.UTC().Add(time.Duration(g.city.Timezone) * time.Second)
	return float64(local.Hour()) + float64(local.Minute())/60
}

// temperature follows a daily cycle peaking mid-afternoon.
func (g *WeatherGenerator) temperature(t time.Time) float64 {
	dailyCycle := 5 * math.Sin((g.localHour(t)-9)*math.Pi/12)
	noise := (g.faker.Float64() - 0.5) * g.noise

	// Occasional anomalies (5% chance)
	anomaly := 0.0
	if g.faker.Float64() < 0.05 {
		anomaly = (g.faker.Float64() - 0.5) * 10
	}

	return g.baselineTemp + dailyCycle + noise + anomaly
}

// humidity is inversely correlated with temperature.
func (g *WeatherGenerator) humidity(t time.Time, temperature float64) float64 {
	dailyCycle := -3 * math.Sin((g.localHour(t)-9)*math.Pi/12)
	tempEffect := -(temperature - g.baselineTemp) * 1.5
	noise := (g.faker.Float64() - 0.5) * g.noise * 0.5
	weatherPattern := 10 * math.Sin(float64(t.Unix())/(86400*7)) // Weekly cycle

	// Occasional showers (3% chance)
	anomaly := 0.0
	if g.faker.Float64() < 0.03 {
		anomaly = g.faker.Float64() * 20
	}

	humidity := g.baselineHumidity + dailyCycle + tempEffect + noise + weatherPattern + anomaly
	return math.Max(20, math.Min(100, humidity))
}

// pressure is a bounded random walk with a trend.
func (g *WeatherGenerator) pressure(t time.Time) float64 {
	randomChange := (g.faker.Float64() - 0.5) * 0.5

	// Occasionally reverse trend (10% chance)
	if g.faker.Float64() < 0.1 {
		g.pressureTrend = -g.pressureTrend + (g.faker.Float64()-0.5)*0.2
	}

	seasonal := 5 * math.Sin(float64(t.YearDay())*2*math.Pi/365)
	p := g.lastPressure + randomChange + g.pressureTrend
	p = g.baselinePressure + (p-g.baselinePressure)*0.7 + seasonal
	p = math.Max(980, math.Min(1040, p))

	g.lastPressure = p
	return p
}

func pickCondition(temperature, humidity float64, cloudiness int) condition {
	switch {
	case humidity >= 90 && temperature <= 0:
		return lightSnow
	case humidity >= 90:
		return lightRain
	case humidity >= 85 && cloudiness < 30:
		return mist
	case cloudiness >= 85:
		return overcast
	case cloudiness >= 25:
		return scatteredCloud
	case cloudiness >= 11:
		return fewClouds
	default:
		return clearSky
	}
}

// sunTimes approximates sunrise and sunset for the day containing t.
func (g *WeatherGenerator) sunTimes(t time.Time) (int64, int64) {
	offset := time.Duration(g.city.Timezone) * time.Second
	local := t.UTC().Add(offset)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC).Add(-offset)

	// Longer days towards the summer pole.
	declination := 23.44 * math.Sin(2*math.Pi*float64(t.YearDay()-81)/365)
	dayLength := 12 + declination*math.Sin(g.city.Latitude*math.Pi/180)*0.25
	dayLength = math.Max(4, math.Min(20, dayLength))

	noon := midnight.Add(12 * time.Hour)
	half := time.Duration(dayLength / 2 * float64(time.Hour))
	return noon.Add(-half).Unix(), noon.Add(half).Unix()
}

// Generate returns the current-weather document for the city at t.
func (g *WeatherGenerator) Generate(t time.Time) *Document {
	g.mu.Lock()
	defer g.mu.Unlock()

	temperature := g.temperature(t)
	humidity := g.humidity(t, temperature)
	pressure := g.pressure(t)
	cloudiness := int(math.Max(0, math.Min(100, (humidity-40)*1.6+g.faker.Float64Range(-10, 10))))
	cond := pickCondition(temperature, humidity, cloudiness)

	sunrise, sunset := g.sunTimes(t)
	icon := cond.icon + "n"
	if t.Unix() >= sunrise && t.Unix() < sunset {
		icon = cond.icon + "d"
	}

	windSpeed := round(g.faker.Float64Range(0, 12), 2)
	visibility := 10000
	if cond == mist || cond == lightRain || cond == lightSnow {
		visibility = g.faker.IntRange(1000, 8000)
	}

	doc := &Document{
		Coord: Coord{Lon: round(g.city.Longitude, 4), Lat: round(g.city.Latitude, 4)},
		Weather: []Condition{{
			ID:          cond.id,
			Main:        cond.main,
			Description: cond.description,
			Icon:        icon,
		}},
		Base: "stations",
		Main: Main{
			Temp:      round(temperature, 2),
			FeelsLike: round(temperature-windSpeed*0.3, 2),
			TempMin:   round(temperature-g.faker.Float64Range(0, 2), 2),
			TempMax:   round(temperature+g.faker.Float64Range(0, 2), 2),
			Pressure:  int(math.Round(pressure)),
			Humidity:  int(math.Round(humidity)),
		},
		Visibility: visibility,
		Wind: Wind{
			Speed: windSpeed,
			Deg:   g.faker.IntRange(0, 359),
		},
		Clouds:   Clouds{All: cloudiness},
		Dt:       t.Unix(),
		Sys:      Sys{Country: g.city.Country, Sunrise: sunrise, Sunset: sunset},
		Timezone: g.city.Timezone,
		ID:       g.city.ID,
		Name:     g.city.Name,
		Cod:      200,
	}
	if windSpeed > 6 {
		gust := round(windSpeed*g.faker.Float64Range(1.2, 1.8), 2)
		doc.Wind.Gust = &gust
	}
	return doc
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
