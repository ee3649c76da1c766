/*
Package cli facilitates building command-line applications that stream vehicle telemetry. It
defines a [Config] type that can be used to register common command-line flags (using the Golang
flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing sensitive values (OAuth tokens)
in an OS-dependent credential store.

# Examples

	import flag

	config, err := NewConfig(FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for OAuth, VIN, streaming, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	config.LoadCredentials()          // Prompt for Keyring password if needed

	acct, err := config.Account()
	if err != nil {
		panic(err)
	}
	// Loads the vehicle record from the vehicle cache, or from the account's vehicle listing.
	car, err := config.Vehicle(ctx, acct)
	if err != nil {
		panic(err)
	}
	client := streaming.NewClient(acct, acct, config.ClientOptions()...)
	stream := client.OpenStream(ctx, car, config.StreamOptions())

Alternatively, you can use a [Flag] mask to control what [Config] fields are populated. Note that
config.Flags must be set before calling [flag.Parse] or [Config.ReadFromEnvironment]:

	config, err = NewConfig(FlagOAuth) // Only OAuth token options, e.g. for saving a token.
*/
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/account"
	"github.com/teslamotors/vehicle-streaming/pkg/cache"
	"github.com/teslamotors/vehicle-streaming/pkg/streaming"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"

	"github.com/99designs/keyring"
)

// Environment variable names used are used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvTeslaTokenName        = "TESLA_TOKEN_NAME"
	EnvTeslaTokenFile        = "TESLA_TOKEN_FILE"
	EnvTeslaVIN              = "TESLA_VIN"
	EnvTeslaVehicleCacheFile = "TESLA_VEHICLE_CACHE_FILE"
	EnvTeslaStreamingURL     = "TESLA_STREAMING_URL"
	EnvTeslaKeyringType      = "TESLA_KEYRING_TYPE"
	EnvTeslaKeyringPass      = "TESLA_KEYRING_PASSWORD"
	EnvTeslaKeyringPath      = "TESLA_KEYRING_PATH"
	EnvTeslaKeyringDebug     = "TESLA_KEYRING_DEBUG"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagVIN    Flag = 1 // Enable VIN option.
	FlagOAuth  Flag = 2 // Enable OAuth options.
	FlagStream Flag = 4 // Enable streaming options (endpoint, vehicle cache, etc.). Requires FlagVIN.
	FlagAll    Flag = FlagVIN | FlagOAuth | FlagStream
)

// DefaultVehicleCacheSize is the number of vehicles kept in the vehicle cache file.
const DefaultVehicleCacheSize = 10

var (
	ErrNoTokenSpecified = errors.New("OAuth token location not provided")
	ErrNoVIN            = errors.New("VIN not provided")
	ErrKeyNotFound      = keyring.ErrKeyNotFound
)

// Config fields determine how a client authenticates to Tesla's backend and which vehicle it
// streams from.
type Config struct {
	Flags            Flag   // Controls which set of environment variables/CLI flags to use.
	KeyringTokenName string // Username for OAuth token in system keyring
	VIN              string
	TokenFilename    string
	// VehicleCacheFilename stores vehicle records so that streams can be opened without listing
	// the account's vehicles first.
	VehicleCacheFilename string
	// Endpoint overrides the streaming server URL.
	Endpoint string
	// Email selects bearer authentication with the vehicle's streaming token.
	Email string
	// Reload fetches the vehicle's current record before connecting.
	Reload      bool
	Backend     keyring.Config
	BackendType backendType
	Debug       bool // Enable keyring debug messages

	password   *string
	vehicles   *cache.VehicleCache
	acct       *account.Account
	oauthToken string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

// RegisterCommandLineFlags adds c's options to the default flag set.
func (c *Config) RegisterCommandLineFlags() {
	c.RegisterFlags(flag.CommandLine)
}

// RegisterFlags adds c's options to fs.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	if c.Flags.isSet(FlagVIN) {
		fs.StringVar(&c.VIN, "vin", "", "Vehicle Identification Number. Defaults to $TESLA_VIN.")
	}
	if c.Flags.isSet(FlagStream) {
		if !c.Flags.isSet(FlagVIN) {
			log.Debug("FlagStream is set but FlagVIN is not. A VIN is required to open a stream.")
		}
		fs.StringVar(&c.VehicleCacheFilename, "vehicle-cache", "", "Load vehicle records from `file`. Defaults to $TESLA_VEHICLE_CACHE_FILE.")
		fs.StringVar(&c.Endpoint, "endpoint", "", "Streaming server `url`. Defaults to $TESLA_STREAMING_URL or "+streaming.DefaultEndpoint+".")
		fs.StringVar(&c.Email, "email", "", "Authenticate with the vehicle's streaming token and this account `email` instead of the OAuth token")
		fs.BoolVar(&c.Reload, "reload", false, "Reload the vehicle record before connecting")
	}
	if c.Flags.isSet(FlagOAuth) {
		fs.StringVar(&c.KeyringTokenName, "token-name", "", "System keyring `name` for OAuth token. Defaults to $TESLA_TOKEN_NAME.")
		fs.StringVar(&c.TokenFilename, "token-file", "", "`File` containing OAuth token. Defaults to $TESLA_TOKEN_FILE.")

		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		fs.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $TESLA_KEYRING_TYPE.")
		fs.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		fs.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// LoadCredentials attempts to open a keyring, prompting for a password if not needed. Call this
// method before [Config.Account] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagOAuth) {
		if _, err := c.token(); err != nil {
			return err
		}
	}
	return nil
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters and avoid potentially misleading
// debug log messages.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagVIN) {
		if c.VIN == "" {
			c.VIN = os.Getenv(EnvTeslaVIN)
			log.Debug("Set VIN to '%s'", c.VIN)
		}
	}
	if c.Flags.isSet(FlagStream) {
		if c.VehicleCacheFilename == "" {
			c.VehicleCacheFilename = os.Getenv(EnvTeslaVehicleCacheFile)
			log.Debug("Set vehicle cache file to '%s'", c.VehicleCacheFilename)
		}
		if c.Endpoint == "" {
			c.Endpoint = os.Getenv(EnvTeslaStreamingURL)
			log.Debug("Set streaming endpoint to '%s'", c.Endpoint)
		}
	}
	if c.Flags.isSet(FlagOAuth) {
		if c.KeyringTokenName == "" && c.TokenFilename == "" {
			c.KeyringTokenName = os.Getenv(EnvTeslaTokenName)
			log.Debug("Set OAuth token name to '%s'", c.KeyringTokenName)

			c.TokenFilename = os.Getenv(EnvTeslaTokenFile)
			log.Debug("Set OAuth token file to '%s'", c.TokenFilename)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvTeslaKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvTeslaKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvTeslaKeyringPath)
			log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvTeslaKeyringDebug)
			log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
		}
	}
}

func (c *Config) loadCache() error {
	if c.vehicles != nil || c.VehicleCacheFilename == "" {
		return nil
	}
	log.Debug("Loading vehicle cache from %s...", c.VehicleCacheFilename)
	var err error
	c.vehicles, err = cache.ImportFromFile(c.VehicleCacheFilename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load vehicle cache: %s", err)
		}
		// Create a new cache if one couldn't be loaded from the file
		c.vehicles = cache.New(DefaultVehicleCacheSize)
	}
	return nil
}

// UpdateCachedVehicle writes v to c.VehicleCacheFilename.
//
// If c.VehicleCacheFilename is not set, then this method does nothing.
func (c *Config) UpdateCachedVehicle(v vehicle.Vehicle) {
	if err := c.loadCache(); err != nil {
		log.Error("Error updating vehicle cache: %s", err)
		return
	}
	if c.vehicles == nil {
		return
	}
	c.vehicles.Update(v)
	if err := c.vehicles.ExportToFile(c.VehicleCacheFilename); err != nil {
		log.Error("Error updating vehicle cache: %s", err)
	}
}

func (c *Config) token() (string, error) {
	if c.oauthToken != "" {
		return c.oauthToken, nil
	}
	if c.TokenFilename == "" && c.KeyringTokenName == "" {
		return "", ErrNoTokenSpecified
	}
	var err error
	if c.TokenFilename != "" {
		token, err := os.ReadFile(c.TokenFilename)
		if err == nil {
			c.oauthToken = string(token)
			return c.oauthToken, nil
		}
		if !errors.Is(err, os.ErrNotExist) || c.KeyringTokenName == "" {
			return "", err
		}
		// If the token file doesn't exist, fall through to trying to load from the system keyring.
	}
	c.oauthToken, err = c.LoadTokenFromKeyring()
	return c.oauthToken, err
}

// Account returns the configured Tesla account.
func (c *Config) Account() (*account.Account, error) {
	if c.acct != nil {
		return c.acct, nil
	}
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	c.acct, err = account.New(token, "")
	return c.acct, err
}

// Vehicle returns the record for c.VIN.
//
// The record is taken from the vehicle cache if present. Otherwise it's fetched from acct's vehicle
// listing and written back to the cache. Cached records may be stale; set c.Reload to have the
// stream fetch the current record before connecting.
func (c *Config) Vehicle(ctx context.Context, acct streaming.VehicleDirectory) (vehicle.Vehicle, error) {
	if c.VIN == "" {
		return vehicle.Vehicle{}, ErrNoVIN
	}
	if err := c.loadCache(); err != nil {
		return vehicle.Vehicle{}, err
	}
	if c.vehicles != nil {
		if v, ok := c.vehicles.GetEntry(c.VIN); ok {
			log.Debug("Using cached record for %s", c.VIN)
			return v, nil
		}
	}
	log.Info("Fetching vehicle %s...", c.VIN)
	v, err := streaming.NewResolver(acct).ResolveVIN(ctx, c.VIN)
	if err != nil {
		return vehicle.Vehicle{}, fmt.Errorf("failed to fetch vehicle %s: %w", c.VIN, err)
	}
	c.UpdateCachedVehicle(v)
	return v, nil
}

// StreamOptions returns the options to use when opening a stream for a vehicle returned by
// [Config.Vehicle].
func (c *Config) StreamOptions() streaming.StreamOptions {
	return streaming.StreamOptions{ReloadVehicle: c.Reload, Email: c.Email}
}

// ClientOptions returns options for [streaming.NewClient].
func (c *Config) ClientOptions() []streaming.Option {
	var options []streaming.Option
	if c.Endpoint != "" {
		options = append(options, streaming.WithEndpoint(c.Endpoint))
	}
	return options
}
