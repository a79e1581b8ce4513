package simulator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"atmoview.dev/telemetry/internal/simulator"
)

// fakeMQClient records pushed messages.
type fakeMQClient struct {
	mu     sync.Mutex
	pushed [][]byte
}

func (f *fakeMQClient) Push(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, data)
	return nil
}

func (f *fakeMQClient) Consume() (<-chan amqp.Delivery, error) { return nil, nil }
func (f *fakeMQClient) Close() error                           { return nil }

func (f *fakeMQClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

var _ = Describe("Simulator", func() {
	var (
		logger *slog.Logger
		client *fakeMQClient
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError + 1,
		}))
		client = &fakeMQClient{}
	})

	Describe("New", func() {
		It("should return error when config is nil", func() {
			sim, err := simulator.New(nil)
			Expect(err).To(HaveOccurred())
			Expect(sim).To(BeNil())
		})

		It("should return error when API base URL is empty", func() {
			sim, err := simulator.New(&simulator.Config{
				Logger:      logger,
				QueueName:   "telemetry",
				DeviceCount: 1,
				MQClient:    client,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("API base URL"))
			Expect(sim).To(BeNil())
		})

		It("should return error when device count is not positive", func() {
			sim, err := simulator.New(&simulator.Config{
				Logger:      logger,
				APIBaseURL:  "http://localhost:8080",
				QueueName:   "telemetry",
				DeviceCount: 0,
				MQClient:    client,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("device count"))
			Expect(sim).To(BeNil())
		})
	})

	Describe("Run", func() {
		It("should register devices and publish readings until canceled", func() {
			var nextID atomic.Int64
			api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/api/devices"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id":   nextID.Add(1),
					"name": "Device",
				})
			}))
			defer api.Close()

			sim, err := simulator.New(&simulator.Config{
				Logger:      logger,
				APIBaseURL:  api.URL,
				QueueName:   "telemetry",
				DeviceCount: 3,
				Interval:    20 * time.Millisecond,
				MQClient:    client,
			})
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- sim.Run(ctx) }()

			Eventually(client.count).Should(BeNumerically(">=", 3))
			cancel()
			Eventually(done).Should(Receive(BeNil()))

			Expect(nextID.Load()).To(Equal(int64(3)))

			var payload struct {
				DeviceID    int64   `json:"device_id"`
				Timestamp   int64   `json:"timestamp"`
				Temperature float64 `json:"temperature"`
			}
			client.mu.Lock()
			body := client.pushed[0]
			client.mu.Unlock()
			Expect(json.Unmarshal(body, &payload)).To(Succeed())
			Expect(payload.DeviceID).To(BeNumerically(">=", 1))
			Expect(payload.Timestamp).To(BeNumerically(">", 0))
		})

		It("should fail when registration is rejected", func() {
			api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer api.Close()

			sim, err := simulator.New(&simulator.Config{
				Logger:      logger,
				APIBaseURL:  api.URL,
				QueueName:   "telemetry",
				DeviceCount: 1,
				Interval:    time.Second,
				MQClient:    client,
			})
			Expect(err).NotTo(HaveOccurred())

			err = sim.Run(context.Background())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("register"))
		})
	})
})
