package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"atmoview.dev/telemetry/internal/ingest"
	"atmoview.dev/telemetry/internal/telemetry"
	clientmq "atmoview.dev/telemetry/pkg/mq"
)

// recordingAppender collects samples appended by the consumer.
type recordingAppender struct {
	mu      sync.Mutex
	samples []telemetry.Sample
}

func (r *recordingAppender) Append(ctx context.Context, deviceID int64, sample *telemetry.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, *sample)
	return nil
}

func (r *recordingAppender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

var _ = Describe("Client", func() {
	var (
		client    *clientmq.Client
		queueName string
	)

	BeforeEach(func() {
		queueName = "telemetry-e2e-" + time.Now().Format("20060102-150405.000")
		client = clientmq.New(queueName, rabbitmqURL, testLogger)
		time.Sleep(2 * time.Second)
	})

	AfterEach(func() {
		_ = client.Close()
	})

	It("should publish messages with confirms", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Expect(client.Push(ctx, []byte(`{"device_id":1}`))).To(Succeed())
		Expect(client.Push(ctx, []byte(`{"device_id":2}`))).To(Succeed())
	})

	It("should deliver published messages to a consumer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Expect(client.Push(ctx, []byte(`hello`))).To(Succeed())

		deliveries, err := client.Consume()
		Expect(err).NotTo(HaveOccurred())

		Eventually(deliveries, 10*time.Second).Should(Receive(
			WithTransform(func(d amqp.Delivery) []byte { return d.Body },
				Equal([]byte(`hello`)))))
	})
})

var _ = Describe("Ingest pipeline", func() {
	It("should consume published samples into the store", func() {
		queueName := "ingest-e2e-" + time.Now().Format("20060102-150405.000")

		appender := &recordingAppender{}
		consumer, err := ingest.NewConsumer(&ingest.ConsumerConfig{
			Logger:      testLogger,
			Store:       appender,
			RabbitMQURL: rabbitmqURL,
			QueueName:   queueName,
		})
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		Expect(consumer.Start(ctx)).To(Succeed())

		publisher := clientmq.New(queueName, rabbitmqURL, testLogger)
		time.Sleep(2 * time.Second)

		body, err := json.Marshal(map[string]any{
			"device_id":   7,
			"timestamp":   time.Now().Unix(),
			"temperature": 21.5,
			"humidity":    48.0,
			"pressure":    1013.2,
			"gas":         120000.0,
		})
		Expect(err).NotTo(HaveOccurred())

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		defer pushCancel()
		Expect(publisher.Push(pushCtx, body)).To(Succeed())

		Eventually(appender.count, 15*time.Second).Should(Equal(1))

		appender.mu.Lock()
		sample := appender.samples[0]
		appender.mu.Unlock()
		Expect(sample.DeviceID).To(Equal(int64(7)))
		Expect(sample.Temperature).To(BeNumerically("~", 21.5, 0.001))

		_ = publisher.Close()
		cancel()
		_ = consumer.Stop()
	})
})
