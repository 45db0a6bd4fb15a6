package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq/mock"
)

var _ = Describe("Publisher", func() {
	stored := weather.StoredReading{
		StoredAt:   time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		City:       "London",
		ReadingID:  7,
		ObservedAt: 1700000000,
	}

	Describe("NewPublisher", func() {
		It("should return error when config is nil", func() {
			_, err := backend.NewPublisher(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		It("should return error when logger is nil", func() {
			_, err := backend.NewPublisher(&backend.PublisherConfig{Client: mock.NewMockClient()})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})

		It("should return error when mq client is nil", func() {
			_, err := backend.NewPublisher(&backend.PublisherConfig{Logger: testLogger()})
			Expect(err).To(MatchError(ContainSubstring("mq client cannot be nil")))
		})
	})

	It("should push a JSON event for each stored reading", func() {
		client := mock.NewMockClient()
		pub, err := backend.NewPublisher(&backend.PublisherConfig{Logger: testLogger(), Client: client})
		Expect(err).NotTo(HaveOccurred())
		pub.Start()

		pub.ReadingStored(context.Background(), stored)
		Expect(pub.Stop()).To(Succeed())

		pushed := client.Pushed()
		Expect(pushed).To(HaveLen(1))

		var ev backend.ReadingEvent
		Expect(json.Unmarshal(pushed[0], &ev)).To(Succeed())
		Expect(uuid.Validate(ev.ID)).To(Succeed())
		Expect(ev.City).To(Equal("London"))
		Expect(ev.ReadingID).To(Equal(uint(7)))
		Expect(ev.ObservedAt).To(Equal(int64(1700000000)))
		Expect(ev.StoredAt.Equal(stored.StoredAt)).To(BeTrue())

		Expect(pushed[0]).To(MatchJSON(`{
			"id": "` + ev.ID + `",
			"city": "London",
			"reading_id": 7,
			"observed_at": 1700000000,
			"stored_at": "2023-11-14T22:13:20Z"
		}`))
	})

	It("should give every event its own id", func() {
		client := mock.NewMockClient()
		pub, err := backend.NewPublisher(&backend.PublisherConfig{Logger: testLogger(), Client: client})
		Expect(err).NotTo(HaveOccurred())
		pub.Start()

		pub.ReadingStored(context.Background(), stored)
		pub.ReadingStored(context.Background(), stored)
		Expect(pub.Stop()).To(Succeed())

		pushed := client.Pushed()
		Expect(pushed).To(HaveLen(2))
		var a, b backend.ReadingEvent
		Expect(json.Unmarshal(pushed[0], &a)).To(Succeed())
		Expect(json.Unmarshal(pushed[1], &b)).To(Succeed())
		Expect(a.ID).NotTo(Equal(b.ID))
	})

	It("should drop events instead of blocking when the buffer is full", func() {
		release := make(chan struct{})
		client := mock.NewMockClient()
		client.PushFunc = func(context.Context, []byte) error {
			<-release
			return nil
		}

		m := metrics.NewBackendMetrics("publishertest")
		pub, err := backend.NewPublisher(&backend.PublisherConfig{
			Logger:     testLogger(),
			Client:     client,
			Metrics:    m,
			BufferSize: 1,
		})
		Expect(err).NotTo(HaveOccurred())
		pub.Start()

		// One event in flight, one buffered, the rest dropped.
		pub.ReadingStored(context.Background(), stored)
		Eventually(func() int { return len(client.Pushed()) }).Should(Equal(1))
		for range 5 {
			pub.ReadingStored(context.Background(), stored)
		}

		dropped := m.EventsPublished.WithLabelValues("dropped")
		Expect(testutil.ToFloat64(dropped)).To(Equal(4.0))

		close(release)
		Expect(pub.Stop()).To(Succeed())
		Expect(client.Pushed()).To(HaveLen(2))
		Expect(testutil.ToFloat64(m.EventsPublished.WithLabelValues("success"))).To(Equal(2.0))
	})

	It("should count push failures without stopping", func() {
		client := mock.NewMockClient()
		client.PushError = errors.New("broker unreachable")

		m := metrics.NewBackendMetrics("publishererrtest")
		pub, err := backend.NewPublisher(&backend.PublisherConfig{Logger: testLogger(), Client: client, Metrics: m})
		Expect(err).NotTo(HaveOccurred())
		pub.Start()

		pub.ReadingStored(context.Background(), stored)
		pub.ReadingStored(context.Background(), stored)
		Expect(pub.Stop()).To(Succeed())

		Expect(client.Pushed()).To(HaveLen(2))
		Expect(testutil.ToFloat64(m.EventsPublished.WithLabelValues("error"))).To(Equal(2.0))
	})

	It("should drop events after Stop and close the client once", func() {
		client := mock.NewMockClient()
		pub, err := backend.NewPublisher(&backend.PublisherConfig{Logger: testLogger(), Client: client})
		Expect(err).NotTo(HaveOccurred())
		pub.Start()

		Expect(pub.Stop()).To(Succeed())
		Expect(pub.Stop()).To(Succeed())
		pub.ReadingStored(context.Background(), stored)

		Expect(client.Pushed()).To(BeEmpty())
		Expect(client.CloseCalls()).To(Equal(1))
	})
})
