// Package generator produces synthetic devices and correlated sensor
// readings for the simulator.
package generator

import (
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Device describes a synthetic device to be registered with the hub.
type Device struct {
	Name      string  `fake:"{city} {streetname}"`
	Latitude  float64 `fake:"{latitude}"`
	Longitude float64 `fake:"{longitude}"`
}

// Reading is one generated environmental sample.
type Reading struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Pressure    float64
	Gas         float64
}

// NewDevice returns a device with a fake name and coordinates.
func NewDevice() *Device {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil
	}
	return &device
}

// ReadingGenerator produces a plausible reading series for one device:
// daily temperature cycle, inversely correlated humidity, slow pressure
// random walk, and a gas-resistance channel that tracks air quality.
type ReadingGenerator struct {
	baselineTemp     float64
	baselineHumidity float64
	baselinePressure float64
	baselineGas      float64
	noise            float64
	pressureTrend    float64
	lastPressure     float64
}

// NewReadingGenerator seeds per-device baselines.
func NewReadingGenerator() *ReadingGenerator {
	return &ReadingGenerator{
		baselineTemp:     20.0 + rand.Float64()*10,         // 20-30 C
		baselineHumidity: 50.0 + rand.Float64()*20,         // 50-70 %
		baselinePressure: 1013.0 + (rand.Float64()-0.5)*20, // 1003-1023 hPa
		baselineGas:      50000 + rand.Float64()*100000,    // 50k-150k ohm
		noise:            rand.Float64() * 2,
		pressureTrend:    (rand.Float64() - 0.5) * 0.5,
		lastPressure:     1013.0,
	}
}

// temperature follows a daily cycle peaking mid-afternoon.
func (g *ReadingGenerator) temperature(t time.Time) float64 {
	hour := float64(t.Hour())
	dailyCycle := 5 * math.Sin((hour-6)*math.Pi/12)
	noise := (rand.Float64() - 0.5) * g.noise

	// Occasional anomaly spike.
	anomaly := 0.0
	if rand.Float64() < 0.05 {
		anomaly = (rand.Float64() - 0.5) * 15
	}

	return g.baselineTemp + dailyCycle + noise + anomaly
}

// humidity is inversely correlated with temperature and higher at night.
func (g *ReadingGenerator) humidity(t time.Time, temperature float64) float64 {
	hour := float64(t.Hour())
	dailyCycle := -3 * math.Sin((hour-6)*math.Pi/12)
	tempEffect := -(temperature - g.baselineTemp) * 1.5
	noise := (rand.Float64() - 0.5) * g.noise * 0.5
	weatherPattern := 10 * math.Sin(float64(t.Unix())/(86400*7))

	// Rain spike.
	anomaly := 0.0
	if rand.Float64() < 0.03 {
		anomaly = rand.Float64() * 20
	}

	humidity := g.baselineHumidity + dailyCycle + tempEffect + noise + weatherPattern + anomaly
	return math.Max(20, math.Min(95, humidity))
}

// pressure changes slowly, a random walk with a weather-system trend.
func (g *ReadingGenerator) pressure(t time.Time) float64 {
	randomChange := (rand.Float64() - 0.5) * 0.5

	if rand.Float64() < 0.1 {
		g.pressureTrend = -g.pressureTrend + (rand.Float64()-0.5)*0.2
	}

	dayOfYear := float64(t.YearDay())
	seasonal := 5 * math.Sin(dayOfYear*2*math.Pi/365)

	hour := float64(t.Hour())
	diurnal := 0.5 * math.Sin((hour-3)*math.Pi/12)

	p := g.lastPressure + randomChange + g.pressureTrend + diurnal*0.1
	p = g.baselinePressure + (p-g.baselinePressure)*0.7 + seasonal
	p = math.Max(980, math.Min(1040, p))

	// Passing weather front.
	if rand.Float64() < 0.02 {
		front := (rand.Float64() - 0.5) * 10
		p += front
		g.pressureTrend = front * 0.3
	}

	g.lastPressure = p
	return p
}

// gas models a metal-oxide gas sensor: resistance drops in humid air and
// when volatile compounds spike.
func (g *ReadingGenerator) gas(humidity float64) float64 {
	humidityEffect := -(humidity - g.baselineHumidity) * 400
	noise := (rand.Float64() - 0.5) * g.baselineGas * 0.05

	// VOC event: resistance collapses briefly.
	anomaly := 0.0
	if rand.Float64() < 0.04 {
		anomaly = -g.baselineGas * rand.Float64() * 0.4
	}

	gas := g.baselineGas + humidityEffect + noise + anomaly
	return math.Max(5000, math.Min(500000, gas))
}

// Next generates a reading for the given instant, with realistic
// cross-channel correlations.
func (g *ReadingGenerator) Next(t time.Time) *Reading {
	temperature := g.temperature(t)
	humidity := g.humidity(t, temperature)
	pressure := g.pressure(t)
	gas := g.gas(humidity)

	return &Reading{
		Timestamp:   t,
		Temperature: math.Round(temperature*100) / 100,
		Humidity:    math.Round(humidity*100) / 100,
		Pressure:    math.Round(pressure*100) / 100,
		Gas:         math.Round(gas),
	}
}
