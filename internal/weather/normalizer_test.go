package weather_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-cache/internal/weather"
)

var _ = Describe("Decompose", func() {
	It("should split a full payload into row fields", func() {
		d, err := weather.Decompose([]byte(londonPayload))
		Expect(err).NotTo(HaveOccurred())

		Expect(d.City.Name).To(Equal("London"))
		Expect(d.City.CountryCode).To(HaveValue(Equal("GB")))
		Expect(d.City.UTCOffset).To(HaveValue(Equal(0)))

		Expect(d.Condition).To(Equal(weather.ConditionFields{
			Main:        "Clouds",
			Description: "overcast clouds",
			Icon:        "04d",
		}))

		Expect(d.Reading.Temperature).To(HaveValue(Equal(15.0)))
		Expect(d.Reading.FeelsLike).To(HaveValue(Equal(14.2)))
		Expect(d.Reading.TemperatureMin).To(HaveValue(Equal(13.9)))
		Expect(d.Reading.TemperatureMax).To(HaveValue(Equal(16.1)))
		Expect(d.Reading.Pressure).To(HaveValue(Equal(1012)))
		Expect(d.Reading.Humidity).To(HaveValue(Equal(72)))
		Expect(d.Reading.Cloudiness).To(HaveValue(Equal(100)))
		Expect(d.Reading.Visibility).To(HaveValue(Equal(9.0)))
		Expect(d.Reading.ObservedAt).To(Equal(int64(1700000000)))

		Expect(d.Wind.Speed).To(HaveValue(Equal(3.1)))
		Expect(d.Wind.Deg).To(HaveValue(Equal(240)))
		Expect(d.Wind.Gust).To(HaveValue(Equal(6.2)))

		Expect(d.Sun).To(Equal(weather.SunFields{Sunrise: 1699950000, Sunset: 1699990000}))
	})

	It("should keep absent optional values nil", func() {
		d, err := weather.Decompose([]byte(londonMinimal))
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Reading.Visibility).To(BeNil())
		Expect(d.Reading.FeelsLike).To(BeNil())
		Expect(d.Reading.Pressure).To(BeNil())
		Expect(d.Reading.Cloudiness).To(BeNil())
		Expect(d.Wind.Gust).To(BeNil())
		Expect(d.Wind.Deg).To(BeNil())
		Expect(d.City.CountryCode).To(BeNil())
		Expect(d.City.UTCOffset).To(BeNil())
	})

	It("should keep zero values distinct from absent ones", func() {
		d, err := weather.Decompose([]byte(`{
			"weather": [{"main": "Clear", "description": "clear sky"}],
			"main": {"temp": 0, "humidity": 0},
			"clouds": {"all": 0},
			"wind": {"speed": 0},
			"sys": {"sunrise": 1, "sunset": 2},
			"visibility": 0,
			"dt": 3,
			"name": "Oymyakon"
		}`))
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Reading.Temperature).To(HaveValue(BeZero()))
		Expect(d.Reading.Humidity).To(HaveValue(BeZero()))
		Expect(d.Reading.Cloudiness).To(HaveValue(BeZero()))
		Expect(d.Reading.Visibility).To(HaveValue(BeZero()))
		Expect(d.Wind.Speed).To(HaveValue(BeZero()))
		Expect(d.Condition.Icon).To(BeEmpty())
	})

	DescribeTable("should substitute a missing city name",
		func(name string) {
			payload := `{"weather":[{"main":"Clear","description":"clear sky"}],"main":{},"clouds":{},"wind":{},` +
				`"sys":{"sunrise":1,"sunset":2},"dt":3` + name + `}`
			d, err := weather.Decompose([]byte(payload))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.City.Name).To(Equal(weather.UnknownCityName))
		},
		Entry("absent", ""),
		Entry("null", `,"name":null`),
		Entry("blank", `,"name":"  "`),
	)

	DescribeTable("should reject malformed payloads with a ParseError",
		func(payload, field string) {
			_, err := weather.Decompose([]byte(payload))

			var parseErr *weather.ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue(), "got %v", err)
			Expect(parseErr.Field).To(Equal(field))
		},
		Entry("invalid json", `{"weather":`, ""),
		Entry("missing weather", `{"main":{},"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "weather"),
		Entry("empty weather", `{"weather":[],"main":{},"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "weather"),
		Entry("weather without main", `{"weather":[{"description":"x"}],"main":{},"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "weather[0].main"),
		Entry("missing main", `{"weather":[{"main":"a","description":"b"}],"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "main"),
		Entry("missing clouds", `{"weather":[{"main":"a","description":"b"}],"main":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "clouds"),
		Entry("missing wind", `{"weather":[{"main":"a","description":"b"}],"main":{},"clouds":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "wind"),
		Entry("missing sys", `{"weather":[{"main":"a","description":"b"}],"main":{},"clouds":{},"wind":{},"dt":1}`, "sys"),
		Entry("missing sunrise", `{"weather":[{"main":"a","description":"b"}],"main":{},"clouds":{},"wind":{},"sys":{"sunset":2},"dt":1}`, "sys.sunrise"),
		Entry("missing sunset", `{"weather":[{"main":"a","description":"b"}],"main":{},"clouds":{},"wind":{},"sys":{"sunrise":1},"dt":1}`, "sys.sunset"),
		Entry("missing dt", `{"weather":[{"main":"a","description":"b"}],"main":{},"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2}}`, "dt"),
		Entry("wrong type", `{"weather":[{"main":"a","description":"b"}],"main":{"temp":"warm"},"clouds":{},"wind":{},"sys":{"sunrise":1,"sunset":2},"dt":1}`, "main.temp"),
	)
})
