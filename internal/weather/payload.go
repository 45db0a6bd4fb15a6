package weather

// Payload is the subset of the OpenWeather "current weather" response the cache
// understands. Pointer fields distinguish an absent value from a zero value.
type Payload struct {
	Name       *string            `json:"name"`
	Main       *PayloadMain       `json:"main"`
	Clouds     *PayloadClouds     `json:"clouds"`
	Wind       *PayloadWind       `json:"wind"`
	Sys        *PayloadSys        `json:"sys"`
	Visibility *float64           `json:"visibility"`
	Dt         *int64             `json:"dt"`
	Timezone   *int               `json:"timezone"`
	Weather    []PayloadCondition `json:"weather"`
}

// PayloadCondition is one element of the upstream "weather" array.
type PayloadCondition struct {
	Main        *string `json:"main"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	ID          *int    `json:"id"`
}

// PayloadMain is the upstream "main" object.
type PayloadMain struct {
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Pressure  *int     `json:"pressure"`
	Humidity  *int     `json:"humidity"`
}

// PayloadClouds is the upstream "clouds" object.
type PayloadClouds struct {
	All *int `json:"all"`
}

// PayloadWind is the upstream "wind" object.
type PayloadWind struct {
	Speed *float64 `json:"speed"`
	Deg   *int     `json:"deg"`
	Gust  *float64 `json:"gust"`
}

// PayloadSys is the upstream "sys" object.
type PayloadSys struct {
	Country *string `json:"country"`
	Sunrise *int64  `json:"sunrise"`
	Sunset  *int64  `json:"sunset"`
}

// Decomposed is an upstream payload split into the rows of one logical write.
type Decomposed struct {
	City      CityFields
	Condition ConditionFields
	Reading   ReadingFields
	Wind      WindFields
	Sun       SunFields
}

// CityFields identifies the reading's city.
type CityFields struct {
	CountryCode *string
	UTCOffset   *int
	Name        string
}

// ConditionFields describes the reading's primary condition.
type ConditionFields struct {
	Main        string
	Description string
	Icon        string
}

// ReadingFields are the scalar measurements of a reading.
type ReadingFields struct {
	Temperature    *float64
	TemperatureMin *float64
	TemperatureMax *float64
	FeelsLike      *float64
	Pressure       *int
	Humidity       *int
	Cloudiness     *int
	// Visibility is in kilometers.
	Visibility *float64
	ObservedAt int64
}

// WindFields are the wind measurements of a reading.
type WindFields struct {
	Speed *float64
	Deg   *int
	Gust  *float64
}

// SunFields are the sunrise and sunset times of a reading, in epoch seconds.
type SunFields struct {
	Sunrise int64
	Sunset  int64
}
