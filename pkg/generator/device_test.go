package generator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"atmoview.dev/telemetry/pkg/generator"
)

var _ = Describe("Generator", func() {
	Describe("NewDevice", func() {
		It("should produce a device with a name and valid coordinates", func() {
			device := generator.NewDevice()
			Expect(device).NotTo(BeNil())
			Expect(device.Name).NotTo(BeEmpty())
			Expect(device.Latitude).To(BeNumerically(">=", -90))
			Expect(device.Latitude).To(BeNumerically("<=", 90))
			Expect(device.Longitude).To(BeNumerically(">=", -180))
			Expect(device.Longitude).To(BeNumerically("<=", 180))
		})
	})

	Describe("ReadingGenerator", func() {
		It("should keep readings within physical bounds", func() {
			gen := generator.NewReadingGenerator()
			now := time.Now()

			for i := range 200 {
				reading := gen.Next(now.Add(time.Duration(i) * time.Minute))
				Expect(reading.Humidity).To(BeNumerically(">=", 20))
				Expect(reading.Humidity).To(BeNumerically("<=", 95))
				Expect(reading.Pressure).To(BeNumerically(">=", 970))
				Expect(reading.Pressure).To(BeNumerically("<=", 1050))
				Expect(reading.Gas).To(BeNumerically(">=", 5000))
				Expect(reading.Gas).To(BeNumerically("<=", 500000))
			}
		})

		It("should stamp readings with the requested instant", func() {
			gen := generator.NewReadingGenerator()
			at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
			Expect(gen.Next(at).Timestamp).To(Equal(at))
		})
	})
})
