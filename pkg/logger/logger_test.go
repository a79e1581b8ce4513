package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"atmoview.dev/telemetry/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		Context("with nil config", func() {
			It("should fall back to defaults", func() {
				log := logger.New(nil)
				Expect(log).NotTo(BeNil())
			})
		})

		Context("with JSON format", func() {
			It("should emit parseable JSON records", func() {
				var buf bytes.Buffer
				log := logger.New(&logger.Config{
					Output: &buf,
					Format: logger.FormatJSON,
					Level:  slog.LevelInfo,
				})

				log.Info("device registered", "device_id", 7)

				var record map[string]any
				Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
				Expect(record["msg"]).To(Equal("device registered"))
				Expect(record["device_id"]).To(BeNumerically("==", 7))
			})
		})

		Context("with text format", func() {
			It("should emit logfmt-style records", func() {
				var buf bytes.Buffer
				log := logger.New(&logger.Config{
					Output: &buf,
					Format: logger.FormatText,
				})

				log.Info("sweep complete", "deleted", 12)
				Expect(buf.String()).To(ContainSubstring("msg=\"sweep complete\""))
				Expect(buf.String()).To(ContainSubstring("deleted=12"))
			})
		})

		Context("with a minimum level", func() {
			It("should drop records below the level", func() {
				var buf bytes.Buffer
				log := logger.New(&logger.Config{
					Output: &buf,
					Level:  slog.LevelWarn,
				})

				log.Info("quiet")
				log.Warn("loud")

				Expect(buf.String()).NotTo(ContainSubstring("quiet"))
				Expect(buf.String()).To(ContainSubstring("loud"))
			})
		})
	})

	Describe("NewDefault", func() {
		It("should create a non-nil logger", func() {
			Expect(logger.NewDefault()).NotTo(BeNil())
		})
	})

	Describe("ParseLevel", func() {
		It("should map known level names", func() {
			Expect(logger.ParseLevel("debug")).To(Equal(slog.LevelDebug))
			Expect(logger.ParseLevel("info")).To(Equal(slog.LevelInfo))
			Expect(logger.ParseLevel("warn")).To(Equal(slog.LevelWarn))
			Expect(logger.ParseLevel("warning")).To(Equal(slog.LevelWarn))
			Expect(logger.ParseLevel("error")).To(Equal(slog.LevelError))
		})

		It("should fall back to info for unknown names", func() {
			for _, name := range []string{"", "trace", strings.ToUpper("debug")} {
				Expect(logger.ParseLevel(name)).To(Equal(slog.LevelInfo))
			}
		})
	})
})
