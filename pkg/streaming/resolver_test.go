package streaming

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/teslamotors/vehicle-streaming/mocks"
	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

var testVehicles = []vehicle.Vehicle{
	{ID: 1, VehicleID: 11, VIN: "TESLA000000000001"},
	{ID: 2, VehicleID: 22, VIN: "TESLA000000000002", Tokens: []string{"t2"}},
	{ID: 3, VehicleID: 22, VIN: "TESLA000000000003"},
}

func TestResolve(t *testing.T) {
	ctrl := gomock.NewController(t)
	directory := mocks.NewVehicleDirectory(ctrl)
	directory.EXPECT().ListVehicles(gomock.Any()).Return(testVehicles, nil).Times(3)
	resolver := NewResolver(directory)

	v, err := resolver.Resolve(context.Background(), 22)
	if err != nil {
		t.Fatal(err)
	}
	if v.VIN != "TESLA000000000002" {
		t.Errorf("Expected first matching vehicle, got %s", v.VIN)
	}

	if _, err := resolver.Resolve(context.Background(), 33); !errors.Is(err, protocol.ErrVehicleNotFound) {
		t.Errorf("Expected ErrVehicleNotFound, got %v", err)
	}

	v, err = resolver.ResolveVIN(context.Background(), "TESLA000000000003")
	if err != nil {
		t.Fatal(err)
	}
	if v.VehicleID != 22 || v.ID != 3 {
		t.Errorf("Unexpected vehicle %+v", v)
	}
}

func TestResolveDirectoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	directory := mocks.NewVehicleDirectory(ctrl)
	listErr := errors.New("unauthorized")
	directory.EXPECT().ListVehicles(gomock.Any()).Return(nil, listErr)

	_, err := NewResolver(directory).Resolve(context.Background(), 11)
	if !errors.Is(err, listErr) {
		t.Errorf("Expected wrapped directory error, got %v", err)
	}
	if errors.Is(err, protocol.ErrVehicleNotFound) {
		t.Error("Directory failure reported as missing vehicle")
	}
}
