package telemetry_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"atmoview.dev/telemetry/internal/telemetry"
)

var _ = Describe("Janitor", func() {
	var (
		logger *slog.Logger
		store  *telemetry.Store
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))

		var err error
		store, err = telemetry.NewStore(&telemetry.StoreConfig{
			Logger: logger,
			DB:     &gorm.DB{},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewJanitor", func() {
		It("should return error when config is nil", func() {
			janitor, err := telemetry.NewJanitor(nil)
			Expect(err).To(HaveOccurred())
			Expect(janitor).To(BeNil())
		})

		It("should return error when the store is missing", func() {
			janitor, err := telemetry.NewJanitor(&telemetry.JanitorConfig{
				Logger: logger,
				Source: fakeSource{},
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("store"))
			Expect(janitor).To(BeNil())
		})

		It("should return error when the device source is missing", func() {
			janitor, err := telemetry.NewJanitor(&telemetry.JanitorConfig{
				Logger: logger,
				Store:  store,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("source"))
			Expect(janitor).To(BeNil())
		})

		It("should accept a full configuration", func() {
			janitor, err := telemetry.NewJanitor(&telemetry.JanitorConfig{
				Logger:   logger,
				Store:    store,
				Source:   fakeSource{},
				Interval: time.Minute,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(janitor).NotTo(BeNil())
		})
	})
})

type fakeSource struct{}

func (fakeSource) DeviceIDs(ctx context.Context) ([]int64, error) { return nil, nil }
