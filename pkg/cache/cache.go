package cache

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

// Entry is a cached vehicle record.
type Entry struct {
	Vehicle  vehicle.Vehicle `json:"vehicle"`
	CachedAt time.Time       `json:"cached_at"`
}

type VehicleCache struct {
	MaxEntries int
	// MaxAge limits how long entries are returned by GetEntry. Zero means entries never expire.
	MaxAge   time.Duration    `json:"-"`
	Vehicles map[string]Entry `json:"vehicles"`
	lock     sync.Mutex
}

// New returns a VehicleCache that holds records for up to maxEntries vehicles, keyed by VIN.
// When the cache is full, the entry that was cached least recently is evicted.
//
// Set maxEntries to zero for an unbounded cache.
func New(maxEntries int) *VehicleCache {
	return &VehicleCache{
		MaxEntries: maxEntries,
		Vehicles:   make(map[string]Entry),
	}
}

// Import a VehicleCache using data in r.
// The data should previously have been generated using [VehicleCache.Export].
func Import(r io.Reader) (*VehicleCache, error) {
	var cache VehicleCache
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Vehicles == nil {
		cache.Vehicles = make(map[string]Entry)
	}
	return &cache, nil
}

// ImportFromFile reads a VehicleCache from disk.
func ImportFromFile(filename string) (*VehicleCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized VehicleCache to w.
func (c *VehicleCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a VehicleCache to disk. Vehicle records include streaming tokens, so the
// file is only readable by its owner.
func (c *VehicleCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Update the VehicleCache's entry for v.VIN.
func (c *VehicleCache) Update(v vehicle.Vehicle) {
	c.Put(Entry{Vehicle: v, CachedAt: time.Now()})
}

// Put adds entry to the cache, replacing any existing entry for the same VIN. If the cache is full,
// the entry with the oldest CachedAt is evicted, which may be entry itself.
func (c *VehicleCache) Put(entry Entry) {
	c.lock.Lock()
	defer c.lock.Unlock()

	vin := entry.Vehicle.VIN
	c.Vehicles[vin] = entry
	if c.MaxEntries > 0 && len(c.Vehicles) > c.MaxEntries {
		oldestVIN := vin
		oldestCachedAt := entry.CachedAt
		for v, e := range c.Vehicles {
			if e.CachedAt.Before(oldestCachedAt) {
				oldestVIN = v
				oldestCachedAt = e.CachedAt
			}
		}
		delete(c.Vehicles, oldestVIN)
	}
}

// GetEntry returns the vehicle record cached for vin, unless it's older than c.MaxAge.
func (c *VehicleCache) GetEntry(vin string) (vehicle.Vehicle, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.Vehicles[vin]
	if !ok {
		return vehicle.Vehicle{}, false
	}
	if c.MaxAge > 0 && time.Since(entry.CachedAt) > c.MaxAge {
		return vehicle.Vehicle{}, false
	}
	return entry.Vehicle, true
}
