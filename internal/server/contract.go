package server

import (
	"time"

	"atmoview.dev/telemetry/internal/dashboard"
	"atmoview.dev/telemetry/internal/telemetry"
)

// timeOfDayLayout renders sample times the way the dashboard displays
// them, en-US twelve-hour clock.
const timeOfDayLayout = "03:04:05 PM"

// ingestRequest is the POST /api/data payload.
type ingestRequest struct {
	ID          int64   `json:"id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Gas         float64 `json:"gas"`
}

// registerRequest is the POST /api/devices payload. Name is optional;
// the registry derives a default from the allocated id.
type registerRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// registerResponse echoes the new device and its partition name.
type registerResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Store string `json:"store"`
}

// patchDeviceRequest is the PATCH /api/devices/{id} payload.
type patchDeviceRequest struct {
	Active bool `json:"active"`
}

// sampleResponse is one sample as the dashboard renders it: the full
// timestamp plus a human-readable time-of-day string.
type sampleResponse struct {
	Timestamp   time.Time `json:"timestamp"`
	Time        string    `json:"time"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Gas         float64   `json:"gas"`
}

// deviceViewResponse is one device joined with its recent samples.
type deviceViewResponse struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Samples []sampleResponse `json:"samples"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func newSampleResponse(sample telemetry.Sample) sampleResponse {
	return sampleResponse{
		Timestamp:   sample.Timestamp,
		Time:        sample.Timestamp.Format(timeOfDayLayout),
		Temperature: sample.Temperature,
		Humidity:    sample.Humidity,
		Pressure:    sample.Pressure,
		Gas:         sample.Gas,
	}
}

func newDeviceViewResponse(view dashboard.DeviceView) deviceViewResponse {
	samples := make([]sampleResponse, len(view.Samples))
	for i, sample := range view.Samples {
		samples[i] = newSampleResponse(sample)
	}
	return deviceViewResponse{
		ID:      view.ID,
		Name:    view.Name,
		Samples: samples,
	}
}
