// Package cache stores vehicle records between runs of a streaming client.
//
// Opening a telemetry stream requires the vehicle's current streaming id and token, which normally
// means listing the account's vehicles first. A [VehicleCache] lets a client skip that request when
// it already knows the vehicle. If the cached record is outdated, the streaming server rejects the
// subscription and the client can reload the vehicle instead.
//
// The same VehicleCache may safely be used with different VINs.
//
// Cached records contain streaming tokens. If a VehicleCache is exported using its
// [VehicleCache.Export] or [VehicleCache.ExportToFile] methods, access controls should be used to
// prevent third parties from reading the data.
package cache
