package mq_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/weather-cache/pkg/mq"
	"procodus.dev/weather-cache/pkg/mq/mock"
)

var _ = Describe("MQ Client", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	newClient := func(url string) *mq.Client {
		client, err := mq.New(&mq.Config{
			QueueName: "weather-refresh",
			URL:       url,
			Logger:    logger,
		})
		Expect(err).NotTo(HaveOccurred())
		return client
	}

	Describe("New", func() {
		It("should reject a nil config", func() {
			_, err := mq.New(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		DescribeTable("should validate required fields",
			func(cfg *mq.Config, msg string) {
				_, err := mq.New(cfg)
				Expect(err).To(MatchError(ContainSubstring(msg)))
			},
			Entry("logger", &mq.Config{QueueName: "q", URL: "amqp://x"}, "logger cannot be nil"),
			Entry("queue", &mq.Config{URL: "amqp://x", Logger: slog.Default()}, "queue name cannot be empty"),
			Entry("url", &mq.Config{QueueName: "q", Logger: slog.Default()}, "url cannot be empty"),
		)

		It("should start disconnected and keep the queue name", func() {
			client := newClient("amqp://invalid:5672")
			defer func() { _ = client.Close() }()

			Expect(client.QueueName()).To(Equal("weather-refresh"))
			Expect(client.IsReady()).To(BeFalse())
		})
	})

	Describe("Push", func() {
		Context("when not connected", func() {
			It("should stop when the context expires", func() {
				client := newClient("amqp://invalid:5672")
				defer func() { _ = client.Close() }()

				ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte(`{"city":"London"}`))

				Expect(err).To(MatchError(context.DeadlineExceeded))
				Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))
			})

			It("should give up after the configured attempts", func() {
				client, err := mq.New(&mq.Config{
					QueueName:  "weather-refresh",
					URL:        "amqp://invalid:5672",
					Logger:     logger,
					MaxRetries: 2,
				})
				Expect(err).NotTo(HaveOccurred())
				defer func() { _ = client.Close() }()

				err = client.Push(context.Background(), []byte("x"))
				Expect(err).To(MatchError(mq.ErrMaxRetriesExceeded))
			})

			It("should return ErrShutdown once closed", func() {
				client := newClient("amqp://invalid:5672")

				go func() {
					time.Sleep(150 * time.Millisecond)
					_ = client.Close()
				}()

				err := client.Push(context.Background(), []byte("x"))
				Expect(err).To(MatchError(mq.ErrShutdown))
			})
		})
	})

	Describe("Consume", func() {
		It("should fail when not connected", func() {
			client := newClient("amqp://invalid:5672")
			defer func() { _ = client.Close() }()

			_, err := client.Consume()
			Expect(err).To(MatchError(mq.ErrNotConnected))
		})
	})

	Describe("Close", func() {
		It("should be safe to call repeatedly and concurrently", func() {
			client := newClient("amqp://invalid:5672")

			done := make(chan error, 3)
			for i := 0; i < 3; i++ {
				go func() { done <- client.Close() }()
			}
			for i := 0; i < 3; i++ {
				Eventually(done).Should(Receive(BeNil()))
			}
		})
	})

	Describe("MockClient", func() {
		It("should record pushes and deliveries acknowledgements", func() {
			m := mock.NewMockClient()
			Expect(m.Push(context.Background(), []byte("a"))).To(Succeed())
			Expect(m.Pushed()).To(Equal([][]byte{[]byte("a")}))

			ack := &mock.Acknowledger{}
			d := mock.Delivery(ack, 7, []byte("Paris"))
			Expect(d.Ack(false)).To(Succeed())
			Expect(d.Nack(false, true)).To(Succeed())

			acked, nacked, requeued := ack.Counts()
			Expect([]int{acked, nacked, requeued}).To(Equal([]int{1, 1, 1}))
		})
	})
})
