package backend_test

import (
	"context"
	"errors"
	"fmt"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/weatherrpc"
)

var _ = Describe("gRPC Service", func() {
	Describe("NewWeatherGRPCService", func() {
		It("should create a service with a logger and a weather getter", func() {
			service, err := backend.NewWeatherGRPCService(testLogger(), &fakeWeather{}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(service).NotTo(BeNil())
		})

		It("should return error when logger is nil", func() {
			service, err := backend.NewWeatherGRPCService(nil, &fakeWeather{}, nil)
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
			Expect(service).To(BeNil())
		})

		It("should return error when weather getter is nil", func() {
			service, err := backend.NewWeatherGRPCService(testLogger(), nil, nil)
			Expect(err).To(MatchError(ContainSubstring("weather service cannot be nil")))
			Expect(service).To(BeNil())
		})
	})

	Describe("GetWeather", func() {
		var (
			fake   *fakeWeather
			client weatherrpc.WeatherServiceClient
		)

		BeforeEach(func() {
			fake = &fakeWeather{}
			service, err := backend.NewWeatherGRPCService(testLogger(), fake, nil)
			Expect(err).NotTo(HaveOccurred())

			lis := bufconn.Listen(1 << 20)
			server := grpc.NewServer()
			weatherrpc.RegisterWeatherServiceServer(server, service)
			go func() { _ = server.Serve(lis) }()
			DeferCleanup(server.Stop)

			conn, err := grpc.NewClient("passthrough:///bufnet",
				grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
					return lis.DialContext(ctx)
				}),
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(conn.Close)

			client = weatherrpc.NewWeatherServiceClient(conn)
		})

		It("should return the weather document as a struct", func() {
			fake.fn = func(_ context.Context, _ string) ([]byte, error) {
				return []byte(londonPayload), nil
			}

			resp, err := client.GetWeather(context.Background(), wrapperspb.String("London"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.GetFields()["name"].GetStringValue()).To(Equal("London"))

			body, err := weatherrpc.StructToPayload(resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(body).To(MatchJSON(londonPayload))
			Expect(fake.Calls()).To(Equal([]string{"London"}))
		})

		DescribeTable("should map weather errors to status codes",
			func(err error, code codes.Code) {
				fake.fn = func(_ context.Context, _ string) ([]byte, error) {
					return nil, err
				}

				_, callErr := client.GetWeather(context.Background(), wrapperspb.String("Atlantis"))
				Expect(callErr).To(HaveOccurred())
				Expect(status.Code(callErr)).To(Equal(code))
			},
			Entry("invalid city", weather.ErrInvalidCity, codes.InvalidArgument),
			Entry("unknown city", fmt.Errorf("failed to fetch: %w", weather.ErrCityNotFound), codes.NotFound),
			Entry("breaker open", weather.ErrUpstreamUnavailable, codes.Unavailable),
			Entry("storage failure", &weather.PersistenceError{Op: "insert reading", Err: errors.New("disk full")}, codes.Internal),
		)

		It("should fail with Internal when the document is not a JSON object", func() {
			fake.fn = func(_ context.Context, _ string) ([]byte, error) {
				return []byte(`[1,2,3]`), nil
			}

			_, err := client.GetWeather(context.Background(), wrapperspb.String("London"))
			Expect(status.Code(err)).To(Equal(codes.Internal))
		})
	})

	Describe("metrics", func() {
		It("should count successful and failed calls", func() {
			m := metrics.NewBackendMetrics("grpcsvctest")
			fake := &fakeWeather{}
			service, err := backend.NewWeatherGRPCService(testLogger(), fake, m)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GetWeather(context.Background(), wrapperspb.String("Paris"))
			Expect(err).NotTo(HaveOccurred())

			fake.fn = func(_ context.Context, _ string) ([]byte, error) {
				return nil, weather.ErrInvalidCity
			}
			_, err = service.GetWeather(context.Background(), wrapperspb.String(""))
			Expect(status.Code(err)).To(Equal(codes.InvalidArgument))

			Expect(testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("GetWeather", "success"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("GetWeather", "error"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.GRPCRequestsInFlight.WithLabelValues("GetWeather"))).To(Equal(0.0))
		})
	})
})
