package streaming

import (
	"context"
	"fmt"

	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

//go:generate mockgen -destination=../../mocks/streaming.go -package=mocks -mock_names TokenProvider=TokenProvider,VehicleDirectory=VehicleDirectory . TokenProvider,VehicleDirectory

// TokenProvider supplies the OAuth access token used to open streams. An empty string means no
// token is available.
type TokenProvider interface {
	AccessToken() string
}

// VehicleDirectory lists the vehicles that belong to an account. It's implemented by
// [github.com/teslamotors/vehicle-streaming/pkg/account.Account].
type VehicleDirectory interface {
	ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error)
}

// Resolver fetches current vehicle records. Streaming ids and tokens change over time, so a record
// loaded from disk may need to be resolved again before it can be used to open a stream.
type Resolver struct {
	directory VehicleDirectory
}

func NewResolver(directory VehicleDirectory) *Resolver {
	return &Resolver{directory: directory}
}

func (r *Resolver) find(ctx context.Context, match func(*vehicle.Vehicle) bool) (vehicle.Vehicle, error) {
	vehicles, err := r.directory.ListVehicles(ctx)
	if err != nil {
		return vehicle.Vehicle{}, fmt.Errorf("failed to list vehicles: %w", err)
	}
	for i := range vehicles {
		if match(&vehicles[i]) {
			return vehicles[i], nil
		}
	}
	return vehicle.Vehicle{}, protocol.ErrVehicleNotFound
}

// Resolve returns the first vehicle in the directory with the given streaming vehicle id. It
// returns [protocol.ErrVehicleNotFound] if there is no match.
func (r *Resolver) Resolve(ctx context.Context, vehicleID int64) (vehicle.Vehicle, error) {
	return r.find(ctx, func(v *vehicle.Vehicle) bool { return v.VehicleID == vehicleID })
}

// ResolveVIN is like Resolve, but looks up the vehicle by VIN.
func (r *Resolver) ResolveVIN(ctx context.Context, vin string) (vehicle.Vehicle, error) {
	return r.find(ctx, func(v *vehicle.Vehicle) bool { return v.VIN == vin })
}
