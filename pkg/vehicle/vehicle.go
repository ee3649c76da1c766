// Package vehicle describes vehicles as they are listed by an account.
package vehicle

import (
	"strconv"
)

// A Vehicle is a record from the account's vehicle listing.
//
// ID is stable for the lifetime of the vehicle on the account. VehicleID identifies the vehicle to
// the streaming service, and Tokens holds the current per-vehicle streaming tokens; both can
// change, which is why streaming clients reload the record before connecting.
type Vehicle struct {
	ID          int64    `json:"id"`
	VehicleID   int64    `json:"vehicle_id"`
	VIN         string   `json:"vin"`
	DisplayName string   `json:"display_name,omitempty"`
	State       string   `json:"state,omitempty"`
	Tokens      []string `json:"tokens,omitempty"`
}

// StreamingID renders the vehicle id used to subscribe to telemetry. It's empty if the record does
// not carry a vehicle id.
func (v *Vehicle) StreamingID() string {
	if v.VehicleID == 0 {
		return ""
	}
	return strconv.FormatInt(v.VehicleID, 10)
}

// StreamingToken returns the first streaming token, if any.
func (v *Vehicle) StreamingToken() (string, bool) {
	if len(v.Tokens) == 0 || v.Tokens[0] == "" {
		return "", false
	}
	return v.Tokens[0], true
}

// Online returns true if the listing reported the vehicle as awake.
func (v *Vehicle) Online() bool {
	return v.State == "online"
}

func (v *Vehicle) String() string {
	if v.DisplayName != "" {
		return v.DisplayName + " (" + v.VIN + ")"
	}
	return v.VIN
}
