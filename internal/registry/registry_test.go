package registry_test

import (
	"context"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"atmoview.dev/telemetry/internal/registry"
)

type noopProvisioner struct{}

func (noopProvisioner) Provision(context.Context, int64) error { return nil }

var _ = Describe("Registry", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("New", func() {
		It("should return error when logger is nil", func() {
			reg, err := registry.New(nil, &gorm.DB{}, noopProvisioner{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger"))
			Expect(reg).To(BeNil())
		})

		It("should return error when database is nil", func() {
			reg, err := registry.New(logger, nil, noopProvisioner{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database"))
			Expect(reg).To(BeNil())
		})

		It("should return error when provisioner is nil", func() {
			reg, err := registry.New(logger, &gorm.DB{}, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("provisioner"))
			Expect(reg).To(BeNil())
		})
	})

	Describe("models", func() {
		It("should map to the expected table names", func() {
			Expect(registry.Device{}.TableName()).To(Equal("devices"))
			Expect(registry.Counter{}.TableName()).To(Equal("device_counters"))
		})

		It("should default Active to true on registration records", func() {
			device := registry.Device{ID: 3, Name: "Device 3", Active: true}
			Expect(device.Active).To(BeTrue())
		})
	})

	Describe("ListDevices", func() {
		Context("with an empty, non-nil filter", func() {
			It("should return an empty result without touching storage", func() {
				// A zero-value gorm.DB would panic on any query; the
				// empty-filter short-circuit must come first.
				reg, err := registry.New(logger, &gorm.DB{}, noopProvisioner{})
				Expect(err).NotTo(HaveOccurred())

				devices, err := reg.ListDevices(context.Background(), []int64{})
				Expect(err).NotTo(HaveOccurred())
				Expect(devices).To(BeEmpty())
			})
		})
	})
})
