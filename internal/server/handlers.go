package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"atmoview.dev/telemetry/internal/access"
	"atmoview.dev/telemetry/internal/registry"
	"atmoview.dev/telemetry/internal/telemetry"
)

// handleHealth serves the health check endpoint.
func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		a.logger.Error("failed to write health response", "error", err)
	}
}

// handleIngest accepts one sample and appends it to the device's
// partition. The timestamp is assigned server-side; device clocks are
// not trusted. Unknown devices are surfaced as 404, not dropped.
func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sample := &telemetry.Sample{
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Pressure:    req.Pressure,
		Gas:         req.Gas,
	}

	if err := a.store.Append(r.Context(), req.ID, sample); err != nil {
		if errors.Is(err, telemetry.ErrUnknownDevice) {
			a.writeError(w, http.StatusNotFound, "unknown device")
			return
		}
		a.logger.Error("failed to append sample", "device_id", req.ID, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to store sample")
		return
	}

	if a.metrics != nil {
		a.metrics.SamplesIngested.Inc()
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRegisterDevice allocates a new device id, provisions its
// partition and returns the device with its derived store name.
func (a *API) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	device, err := a.registrar.RegisterDevice(r.Context(), req.Name, req.Latitude, req.Longitude)
	if err != nil {
		a.logger.Error("failed to register device", "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}

	if a.granter != nil && a.adminUser != "" {
		// Grant failure does not undo the registration; the projection
		// sync catches up on the next run.
		if err := a.granter.Grant(r.Context(), a.adminUser, device.ID); err != nil {
			a.logger.Warn("failed to grant new device to admin account",
				"device_id", device.ID,
				"user_id", a.adminUser,
				"error", err,
			)
		}
	}

	if a.metrics != nil {
		a.metrics.DevicesCreated.Inc()
	}
	a.writeJSON(w, http.StatusCreated, registerResponse{
		ID:    device.ID,
		Name:  device.Name,
		Store: telemetry.PartitionName(device.ID),
	})
}

// handlePatchDevice toggles a device's active flag.
func (a *API) handlePatchDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	var req patchDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.registrar.SetActive(r.Context(), id, req.Active); err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			a.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		a.logger.Error("failed to update device", "device_id", id, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to update device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDashboard serves the caller's devices joined with their recent
// samples.
func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}

	views, err := a.dashboard.FetchDashboard(r.Context(), userID)
	if err != nil {
		if errors.Is(err, access.ErrUserNotFound) {
			a.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		a.logger.Error("failed to fetch dashboard", "user_id", userID, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to fetch dashboard")
		return
	}

	out := make([]deviceViewResponse, len(views))
	for i, view := range views {
		out[i] = newDeviceViewResponse(view)
	}
	a.writeJSON(w, http.StatusOK, out)
}

// handleListDevices serves the caller's device summaries, metadata only.
func (a *API) handleListDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := a.requireUser(w, r)
	if !ok {
		return
	}

	summaries, err := a.dashboard.FetchDeviceSummaries(r.Context(), userID)
	if err != nil {
		if errors.Is(err, access.ErrUserNotFound) {
			a.writeError(w, http.StatusNotFound, "user not found")
			return
		}
		a.logger.Error("failed to list devices", "user_id", userID, "error", err)
		a.writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	a.writeJSON(w, http.StatusOK, summaries)
}

// requireUser extracts the caller identity header, writing 401 when it
// is absent.
func (a *API) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		a.writeError(w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return userID, true
}
