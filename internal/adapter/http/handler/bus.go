package handler

import (
	"context"
	"net/http"
	"sort"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/pkg/logger"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
)

type Bus struct {
	service BusReadService
	fleet   []string
	l       logger.Logger
}

type BusReadService interface {
	FleetStatus(ctx context.Context) (map[string]models.VehicleStatus, error)
	RecentLocations(ctx context.Context, busID string, limit int) ([]models.LocationSample, error)
	Latest(ctx context.Context, busID string) (*models.LocationSample, models.VehicleStatus, error)
}

func NewBus(service BusReadService, fleet []string, l logger.Logger) *Bus {
	sorted := make([]string, len(fleet))
	copy(sorted, fleet)
	sort.Strings(sorted)

	return &Bus{
		service: service,
		fleet:   sorted,
		l:       l,
	}
}

// Root godoc
// @Summary      Service Summary
// @Description  Returns the fleet and the available endpoints
// @Tags         Fleet
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       / [get]
func (h *Bus) Root(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "root_summary")

	response := envelope{
		"service": "bus tracker",
		"buses":   h.fleet,
		"endpoints": []string{
			"GET /health",
			"GET /buses/status",
			"GET /bus/{bus_id}/locations",
			"GET /bus/{bus_id}/latest",
			"GET /ws",
		},
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// FleetStatus godoc
// @Summary      Fleet Status
// @Description  Returns the trip status of every bus in the fleet
// @Tags         Fleet
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      500  {object}  map[string]any
// @Router       /buses/status [get]
func (h *Bus) FleetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "fleet_status")

	statuses, err := h.service.FleetStatus(ctx)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to collect fleet status", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"buses": statuses}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// RecentLocations godoc
// @Summary      Location History
// @Description  Returns recent location samples for one bus, newest first
// @Tags         Fleet
// @Produce      json
// @Param        bus_id  path   string  true   "Bus ID"
// @Param        limit   query  int     false  "Maximum number of samples"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Failure      500  {object}  map[string]any
// @Router       /bus/{bus_id}/locations [get]
func (h *Bus) RecentLocations(w http.ResponseWriter, r *http.Request) {
	busID := r.PathValue("bus_id")
	ctx := wrap.WithBusID(wrap.WithAction(r.Context(), "recent_locations"), busID)

	limit := readLimitQuery(r, "limit", 0)

	samples, err := h.service.RecentLocations(ctx, busID, limit)
	if err != nil {
		h.l.Warn(ctx, "failed to load location history", "err", err.Error())
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"busId":     busID,
		"count":     len(samples),
		"locations": samples,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// Latest godoc
// @Summary      Latest Location
// @Description  Returns the newest location sample and current status of one bus
// @Tags         Fleet
// @Produce      json
// @Param        bus_id  path  string  true  "Bus ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  map[string]any
// @Failure      500  {object}  map[string]any
// @Router       /bus/{bus_id}/latest [get]
func (h *Bus) Latest(w http.ResponseWriter, r *http.Request) {
	busID := r.PathValue("bus_id")
	ctx := wrap.WithBusID(wrap.WithAction(r.Context(), "latest_location"), busID)

	sample, status, err := h.service.Latest(ctx, busID)
	if err != nil {
		h.l.Warn(ctx, "failed to load latest location", "err", err.Error())
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	response := envelope{
		"busId":  busID,
		"status": status,
	}
	if sample != nil {
		response["location"] = sample
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}
