package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/protocol"
)

// OutletResponse is the body of the outlet endpoints.
type OutletResponse struct {
	Active    bool    `json:"active"`
	Power     float64 `json:"power"`
	DeviceID  string  `json:"device_id,omitempty"`
	Connected bool    `json:"connected"`
	Address   string  `json:"address"`
}

// ThermResponse is the body of the thermometer endpoint and the payload of
// therm.reading WebSocket events.
type ThermResponse struct {
	Temperature *float64   `json:"temperature,omitempty"`
	Fresh       bool       `json:"fresh"`
	Error       string     `json:"error,omitempty"`
	LastUpdate  *time.Time `json:"last_update,omitempty"`
}

func (s *Server) outletResponse(snap protocol.OutletSnapshot) OutletResponse {
	return OutletResponse{
		Active:    snap.Active,
		Power:     snap.Power,
		DeviceID:  snap.DeviceID,
		Connected: s.outlet.IsConnected(),
		Address:   s.outlet.Address(),
	}
}

// handleGetOutlet returns the last synchronised outlet state without
// contacting the outlet.
func (s *Server) handleGetOutlet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.outletResponse(s.outlet.Device()))
}

// handleOutletOn switches the outlet on.
func (s *Server) handleOutletOn(w http.ResponseWriter, r *http.Request) {
	s.switchOutlet(w, r, s.outlet.TurnOn)
}

// handleOutletOff switches the outlet off.
func (s *Server) handleOutletOff(w http.ResponseWriter, r *http.Request) {
	s.switchOutlet(w, r, s.outlet.TurnOff)
}

func (s *Server) switchOutlet(w http.ResponseWriter, r *http.Request, op func(context.Context) error) {
	if err := op(r.Context()); err != nil {
		s.logger.Warn("outlet command failed", "error", err)
		writeControllerError(w, err)
		return
	}
	resp := s.outletResponse(s.outlet.Device())
	s.hub.Broadcast(ChannelOutletState, resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleOutletPower queries the outlet for its current power draw.
func (s *Server) handleOutletPower(w http.ResponseWriter, r *http.Request) {
	power, err := s.outlet.Power(r.Context())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	snap := s.outlet.Device()
	writeJSON(w, http.StatusOK, map[string]any{
		"power":     float64(power),
		"active":    snap.Active,
		"device_id": snap.DeviceID,
	})
}

// handleGetTherm returns the latest fresh temperature, or 503 when the
// thermometer has gone quiet for longer than its freshness window.
func (s *Server) handleGetTherm(w http.ResponseWriter, _ *http.Request) {
	temp, err := s.therm.Temperature()
	if err != nil {
		if !errors.Is(err, controller.ErrNoFreshData) {
			writeControllerError(w, err)
			return
		}
		resp := ThermResponse{Fresh: false, Error: err.Error()}
		if last := s.therm.Stats().LastUpdate; !last.IsZero() {
			resp.LastUpdate = &last
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	t := float64(temp)
	resp := ThermResponse{Temperature: &t, Fresh: true}
	if last := s.therm.Stats().LastUpdate; !last.IsZero() {
		resp.LastUpdate = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// thermPayload converts a reading into a WebSocket event payload.
func thermPayload(r controller.Reading, now time.Time) ThermResponse {
	if !r.OK() {
		return ThermResponse{Fresh: false, Error: r.Err.Error()}
	}
	t := float64(r.Temperature)
	ts := now.UTC()
	return ThermResponse{Temperature: &t, Fresh: true, LastUpdate: &ts}
}
