package weather_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"procodus.dev/weather-cache/internal/weather"
)

type failingRepository struct {
	weather.Repository
	err error
}

func (r failingRepository) Persist(context.Context, *weather.Decomposed) (*weather.CurrentReading, error) {
	return nil, &weather.PersistenceError{Op: "persist", Err: r.err}
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		store    *weather.Store
		upstream *fakeFetcher
		notifier *recordingNotifier
		now      time.Time
		svc      *weather.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = newTestDB()
		store = newTestStore(db)
		upstream = newFakeFetcher()
		upstream.set("London", londonPayload)
		upstream.set("london", londonPayload)
		notifier = &recordingNotifier{}
		// Ten minutes after the London payload's dt.
		now = time.Unix(1700000600, 0)

		var err error
		svc, err = weather.NewService(&weather.ServiceConfig{
			Repository: store,
			Upstream:   upstream,
			Logger:     testLogger(),
			Notifier:   notifier,
			Now:        func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewService", func() {
		It("should validate its config", func() {
			_, err := weather.NewService(nil)
			Expect(err).To(HaveOccurred())

			_, err = weather.NewService(&weather.ServiceConfig{Upstream: upstream, Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("repository cannot be nil")))

			_, err = weather.NewService(&weather.ServiceConfig{Repository: store, Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("upstream cannot be nil")))

			_, err = weather.NewService(&weather.ServiceConfig{Repository: store, Upstream: upstream})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))

			_, err = weather.NewService(&weather.ServiceConfig{
				Repository: store, Upstream: upstream, Logger: testLogger(), FreshnessWindow: -time.Minute,
			})
			Expect(err).To(HaveOccurred())
		})

		It("should default the freshness window to thirty minutes", func() {
			Expect(svc.FreshnessWindow()).To(Equal(30 * time.Minute))
		})
	})

	Describe("GetWeather", func() {
		DescribeTable("should reject empty city names without calling upstream",
			func(city string) {
				_, err := svc.GetWeather(ctx, city)
				Expect(err).To(MatchError(weather.ErrInvalidCity))
				Expect(upstream.callCount()).To(BeZero())
			},
			Entry("empty", ""),
			Entry("whitespace", " \t "),
		)

		Context("on a cache miss", func() {
			It("should call upstream once and return its bytes unchanged", func() {
				body, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal(londonPayload))
				Expect(upstream.callCount()).To(Equal(1))
			})

			It("should persist exactly one reading, wind and sun", func() {
				_, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())

				Expect(count(db, &weather.City{})).To(Equal(int64(1)))
				Expect(count(db, &weather.Condition{})).To(Equal(int64(1)))
				Expect(count(db, &weather.CurrentReading{})).To(Equal(int64(1)))
				Expect(count(db, &weather.Wind{})).To(Equal(int64(1)))
				Expect(count(db, &weather.Sun{})).To(Equal(int64(1)))
			})

			It("should notify about the committed reading", func() {
				_, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())

				events := notifier.all()
				Expect(events).To(HaveLen(1))
				Expect(events[0].City).To(Equal("London"))
				Expect(events[0].ObservedAt).To(Equal(int64(1700000000)))
				Expect(events[0].ReadingID).NotTo(BeZero())
				Expect(events[0].StoredAt).To(Equal(now.UTC()))
			})
		})

		Context("on a cache hit", func() {
			BeforeEach(func() {
				_, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should answer a differently cased name from the store", func() {
				body, err := svc.GetWeather(ctx, "london")
				Expect(err).NotTo(HaveOccurred())

				Expect(upstream.callCount()).To(Equal(1))
				Expect(count(db, &weather.City{})).To(Equal(int64(1)))
				Expect(count(db, &weather.CurrentReading{})).To(Equal(int64(1)))
				Expect(notifier.all()).To(HaveLen(1))

				var m map[string]any
				Expect(json.Unmarshal(body, &m)).To(Succeed())
				Expect(m).To(HaveKeyWithValue("name", "London"))
			})

			It("should return the rendered shape rather than the upstream bytes", func() {
				body, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).NotTo(Equal(londonPayload))

				var m map[string]any
				Expect(json.Unmarshal(body, &m)).To(Succeed())
				Expect(m["weather"]).To(HaveLen(1))
				Expect(m).NotTo(HaveKey("coord"))
				Expect(m).NotTo(HaveKey("base"))

				city, err := store.FindCityByName(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
				Expect(m).To(HaveKeyWithValue("id", float64(city.ID)))
			})

			It("should refetch once the reading leaves the window", func() {
				now = now.Add(31 * time.Minute)

				body, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(Equal(londonPayload))

				Expect(upstream.callCount()).To(Equal(2))
				Expect(count(db, &weather.City{})).To(Equal(int64(1)))
				Expect(count(db, &weather.CurrentReading{})).To(Equal(int64(2)))
			})

			It("should treat the window start as exclusive", func() {
				now = time.Unix(1700000000, 0).Add(30 * time.Minute)

				_, err := svc.GetWeather(ctx, "London")
				Expect(err).NotTo(HaveOccurred())
				Expect(upstream.callCount()).To(Equal(2))
			})
		})

		It("should render a missing visibility as 10000 on the next hit", func() {
			upstream.set("London", londonMinimal)

			_, err := svc.GetWeather(ctx, "London")
			Expect(err).NotTo(HaveOccurred())

			var stored weather.CurrentReading
			Expect(db.First(&stored).Error).To(Succeed())
			Expect(stored.Visibility).To(BeNil())

			body, err := svc.GetWeather(ctx, "London")
			Expect(err).NotTo(HaveOccurred())
			Expect(upstream.callCount()).To(Equal(1))

			var m map[string]any
			Expect(json.Unmarshal(body, &m)).To(Succeed())
			Expect(m).To(HaveKeyWithValue("visibility", 10000.0))
		})

		Context("when something fails", func() {
			It("should surface upstream errors without writing", func() {
				_, err := svc.GetWeather(ctx, "Atlantis")
				Expect(err).To(MatchError(weather.ErrCityNotFound))
				Expect(weather.HTTPStatus(err)).To(Equal(404))
				Expect(count(db, &weather.City{})).To(BeZero())
			})

			It("should reject malformed payloads without writing", func() {
				upstream.set("Broken", `{"name":"Broken","weather":[]}`)

				_, err := svc.GetWeather(ctx, "Broken")
				var parseErr *weather.ParseError
				Expect(errors.As(err, &parseErr)).To(BeTrue())
				Expect(weather.HTTPStatus(err)).To(Equal(500))
				Expect(count(db, &weather.City{})).To(BeZero())
				Expect(notifier.all()).To(BeEmpty())
			})

			It("should surface persistence errors", func() {
				failing, err := weather.NewService(&weather.ServiceConfig{
					Repository: failingRepository{Repository: store, err: errors.New("disk full")},
					Upstream:   upstream,
					Logger:     testLogger(),
					Notifier:   notifier,
				})
				Expect(err).NotTo(HaveOccurred())

				_, err = failing.GetWeather(ctx, "London")
				var persistErr *weather.PersistenceError
				Expect(errors.As(err, &persistErr)).To(BeTrue())
				Expect(notifier.all()).To(BeEmpty())
			})

			It("should surface lookup errors", func() {
				sqlDB, err := db.DB()
				Expect(err).NotTo(HaveOccurred())
				Expect(sqlDB.Close()).To(Succeed())

				_, err = svc.GetWeather(ctx, "London")
				var persistErr *weather.PersistenceError
				Expect(errors.As(err, &persistErr)).To(BeTrue())
				Expect(upstream.callCount()).To(BeZero())
			})
		})
	})
})
