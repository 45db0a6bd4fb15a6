package generator

// Document is an OpenWeather current-weather response.
type Document struct {
	Coord      Coord       `json:"coord"`
	Weather    []Condition `json:"weather"`
	Base       string      `json:"base"`
	Main       Main        `json:"main"`
	Visibility int         `json:"visibility"`
	Wind       Wind        `json:"wind"`
	Clouds     Clouds      `json:"clouds"`
	Dt         int64       `json:"dt"`
	Sys        Sys         `json:"sys"`
	Timezone   int         `json:"timezone"`
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Cod        int         `json:"cod"`
}

type Coord struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	ID          int    `json:"id"`
}

type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type Wind struct {
	Gust  *float64 `json:"gust,omitempty"`
	Speed float64  `json:"speed"`
	Deg   int      `json:"deg"`
}

type Clouds struct {
	All int `json:"all"`
}

type Sys struct {
	Country string `json:"country,omitempty"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}
