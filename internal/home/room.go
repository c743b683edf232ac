package home

import (
	"slices"
	"sync"

	"github.com/DyakonovAlex/smart-home/internal/controller"
	"github.com/DyakonovAlex/smart-home/internal/device"
)

// Room holds named devices and controllers. Device and controller keys
// are independent namespaces.
type Room struct {
	mu          sync.RWMutex
	devices     map[string]device.Device
	controllers map[string]controller.Controller
}

// NewRoom returns an empty room.
func NewRoom() *Room {
	return &Room{
		devices:     make(map[string]device.Device),
		controllers: make(map[string]controller.Controller),
	}
}

// AddDevice stores d under key, replacing any previous device.
func (r *Room) AddDevice(key string, d device.Device) {
	r.mu.Lock()
	r.devices[key] = d
	r.mu.Unlock()
}

// RemoveDevice removes and returns the device under key.
func (r *Room) RemoveDevice(key string) (device.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[key]
	delete(r.devices, key)
	return d, ok
}

// Device returns the device under key.
func (r *Room) Device(key string) (device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[key]
	return d, ok
}

// AddController stores c under key, replacing any previous controller.
func (r *Room) AddController(key string, c controller.Controller) {
	r.mu.Lock()
	r.controllers[key] = c
	r.mu.Unlock()
}

// RemoveController removes and returns the controller under key. The
// caller owns closing it.
func (r *Room) RemoveController(key string) (controller.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.controllers[key]
	delete(r.controllers, key)
	return c, ok
}

// Controller returns the controller under key.
func (r *Room) Controller(key string) (controller.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[key]
	return c, ok
}

// DeviceKeys returns device keys in sorted order.
func (r *Room) DeviceKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.devices)
}

// ControllerKeys returns controller keys in sorted order.
func (r *Room) ControllerKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.controllers)
}

// Len returns the number of devices plus controllers.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices) + len(r.controllers)
}

// ReportLines returns one line per device, then one per controller, each
// group in key order.
func (r *Room) ReportLines() []string {
	summary := r.summary("")
	lines := make([]string, 0, len(summary.Devices)+len(summary.Controllers))
	for _, item := range summary.Devices {
		lines = append(lines, "[Device:"+item.Key+"] "+item.Report)
	}
	for _, item := range summary.Controllers {
		lines = append(lines, "[Controller:"+item.Key+"] "+item.Report)
	}
	return lines
}

func (r *Room) summary(name string) RoomSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := RoomSummary{
		Name:        name,
		Devices:     make([]ItemSummary, 0, len(r.devices)),
		Controllers: make([]ItemSummary, 0, len(r.controllers)),
	}
	for _, key := range sortedKeys(r.devices) {
		d := r.devices[key]
		s.Devices = append(s.Devices, ItemSummary{Key: key, Kind: string(device.KindOf(d)), Report: d.Report()})
	}
	for _, key := range sortedKeys(r.controllers) {
		c := r.controllers[key]
		s.Controllers = append(s.Controllers, ItemSummary{Key: key, Kind: controller.Describe(c), Report: c.Report()})
	}
	return s
}

func (r *Room) closeControllers() []error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, key := range sortedKeys(r.controllers) {
		if err := r.controllers[key].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
