// Package home arranges devices and controllers into rooms of a house and
// renders reports over them.
package home

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
)

// Lookup errors.
var (
	ErrRoomNotFound   = errors.New("home: room not found")
	ErrDeviceNotFound = errors.New("home: device not found")
)

// ItemSummary describes one device or controller.
type ItemSummary struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Report string `json:"report"`
}

// RoomSummary describes a room.
type RoomSummary struct {
	Name        string        `json:"name"`
	Devices     []ItemSummary `json:"devices"`
	Controllers []ItemSummary `json:"controllers"`
}

// Summary describes a house for the ops API.
type Summary struct {
	Name  string        `json:"name"`
	Rooms []RoomSummary `json:"rooms"`
}

// House is a named set of rooms.
//
// Thread Safety: all methods are safe for concurrent use.
type House struct {
	name  string
	mu    sync.RWMutex
	rooms map[string]*Room
}

// New returns an empty house.
func New(name string) *House {
	return &House{name: name, rooms: make(map[string]*Room)}
}

// Name returns the house name.
func (h *House) Name() string { return h.name }

// AddRoom stores r under key, replacing any previous room.
func (h *House) AddRoom(key string, r *Room) {
	h.mu.Lock()
	h.rooms[key] = r
	h.mu.Unlock()
}

// RemoveRoom removes and returns the room under key.
func (h *House) RemoveRoom(key string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	delete(h.rooms, key)
	return r, ok
}

// Room returns the room under key.
func (h *House) Room(key string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[key]
	return r, ok
}

// RoomKeys returns room keys in sorted order.
func (h *House) RoomKeys() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.rooms)
}

// RoomCount returns the number of rooms.
func (h *House) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Device looks up a device by room and device key.
func (h *House) Device(roomKey, deviceKey string) (device.Device, error) {
	r, ok := h.Room(roomKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, roomKey)
	}
	d, ok := r.Device(deviceKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q in room %q", ErrDeviceNotFound, deviceKey, roomKey)
	}
	return d, nil
}

// Controller looks up a controller by room and controller key.
func (h *House) Controller(roomKey, controllerKey string) (controller.Controller, error) {
	r, ok := h.Room(roomKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, roomKey)
	}
	c, ok := r.Controller(controllerKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q in room %q", ErrDeviceNotFound, controllerKey, roomKey)
	}
	return c, nil
}

// Summary snapshots every room in key order.
func (h *House) Summary() Summary {
	h.mu.RLock()
	keys := sortedKeys(h.rooms)
	rooms := make([]*Room, len(keys))
	for i, k := range keys {
		rooms[i] = h.rooms[k]
	}
	h.mu.RUnlock()

	s := Summary{Name: h.name, Rooms: make([]RoomSummary, 0, len(rooms))}
	for i, r := range rooms {
		s.Rooms = append(s.Rooms, r.summary(keys[i]))
	}
	return s
}

// ReportLines returns a "Room: key" header per room followed by its
// indented report lines.
func (h *House) ReportLines() []string {
	var lines []string
	for _, key := range h.RoomKeys() {
		r, ok := h.Room(key)
		if !ok {
			continue
		}
		lines = append(lines, "Room: "+key)
		for _, line := range r.ReportLines() {
			lines = append(lines, "  "+line)
		}
	}
	return lines
}

// Report joins ReportLines with newlines.
func (h *House) Report() string {
	return strings.Join(h.ReportLines(), "\n")
}

func (h *House) String() string { return h.Report() }

// Close closes every controller in every room.
func (h *House) Close() error {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, k := range sortedKeys(h.rooms) {
		rooms = append(rooms, h.rooms[k])
	}
	h.mu.RUnlock()

	var errs []error
	for _, r := range rooms {
		errs = append(errs, r.closeControllers()...)
	}
	return errors.Join(errs...)
}
