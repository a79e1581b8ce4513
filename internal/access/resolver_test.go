package access_test

import (
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"atmoview.dev/telemetry/internal/access"
)

var _ = Describe("Resolver", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewResolver", func() {
		It("should return error when logger is nil", func() {
			resolver, err := access.NewResolver(nil, &gorm.DB{})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger"))
			Expect(resolver).To(BeNil())
		})

		It("should return error when database is nil", func() {
			resolver, err := access.NewResolver(logger, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database"))
			Expect(resolver).To(BeNil())
		})

		It("should create a resolver with valid arguments", func() {
			resolver, err := access.NewResolver(logger, &gorm.DB{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resolver).NotTo(BeNil())
		})
	})

	Describe("models", func() {
		It("should map to the expected table names", func() {
			Expect(access.UserAccount{}.TableName()).To(Equal("user_accounts"))
			Expect(access.DeviceGrant{}.TableName()).To(Equal("user_device_grants"))
		})
	})
})
