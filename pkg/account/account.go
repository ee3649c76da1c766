package account

import (
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/connector/inet"
	"github.com/teslamotors/vehicle-streaming/pkg/vehicle"
)

var (
	//go:embed version.txt
	libraryVersion string
)

func buildUserAgent(app string) string {
	library := strings.TrimSpace("tesla-streaming-sdk/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

// Account allows interaction with a Tesla account.
//
// An Account provides the OAuth access token and vehicle listing used to open telemetry streams.
type Account struct {
	// The default UserAgent is constructed from the global UserAgent, but can be overridden.
	UserAgent string
	Subject   string

	token  string
	client http.Client

	lock sync.Mutex
	host string
}

// We don't verify JWTs; we only need the claims that determine the API server domain name.
type oauthClaims struct {
	jwt.RegisteredClaims
	OUCode string `json:"ou_code"`
}

var domainRegEx = regexp.MustCompile(`^[A-Za-z0-9-.]+$`) // We're mostly interested in stopping paths; the http package handles the rest.
var remappedDomains = map[string]string{}                // For use during development; populate in an init() function.

const defaultDomain = "fleet-api.prd.na.vn.cloud.tesla.com"

func (c *oauthClaims) domain() string {
	if len(remappedDomains) > 0 {
		for _, a := range c.Audience {
			if d, ok := remappedDomains[a]; ok {
				return d
			}
		}
	}
	domain := defaultDomain
	ouCodeMatch := fmt.Sprintf(".%s.", strings.ToLower(c.OUCode))
	for _, u := range c.Audience {
		if strings.HasPrefix(u, "https://auth.tesla.") {
			continue
		}
		d, _ := strings.CutPrefix(u, "https://")
		d, _ = strings.CutSuffix(d, "/")
		if !domainRegEx.MatchString(d) {
			continue
		}

		if inet.ValidTeslaDomainSuffix(d) && strings.HasPrefix(d, "fleet-api.") {
			domain = d
			// Prefer domains that contain the ou_code (region)
			if strings.Contains(domain, ouCodeMatch) {
				return domain
			}
		}
	}
	return domain
}

var ErrMalformedToken = errors.New("client provided malformed OAuth token")

// New returns an [Account] that can be used to list vehicles and open telemetry streams.
// Optional userAgent can be passed in - otherwise it will be generated from code
func New(oauthToken, userAgent string) (*Account, error) {
	oauthToken = strings.TrimSpace(oauthToken)
	var claims oauthClaims
	if _, _, err := jwt.NewParser().ParseUnverified(oauthToken, &claims); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedToken, err)
	}
	return &Account{
		UserAgent: buildUserAgent(userAgent),
		Subject:   claims.Subject,
		token:     oauthToken,
		host:      claims.domain(),
	}, nil
}

// AccessToken returns the OAuth token used to authorize requests.
func (a *Account) AccessToken() string {
	return a.token
}

// Host returns the Fleet API domain used by a.
func (a *Account) Host() string {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.host
}

// Get sends an HTTP GET request to endpoint.
//
// The endpoint should contain only the path (e.g., "api/1/vehicles"); the domain is determined by
// the OAuth token. If the server responds that the account belongs to a different region, the
// request is retried once against the domain it suggests.
func (a *Account) Get(ctx context.Context, endpoint string) ([]byte, error) {
	body, err := a.fetch(ctx, endpoint)
	var httpErr *inet.HttpError
	if errors.As(err, &httpErr) {
		if domain, ok := httpErr.RedirectDomain(); ok {
			log.Debug("Received HTTP Status 421. Updating server URL to %s.", domain)
			a.lock.Lock()
			a.host = domain
			a.lock.Unlock()
			return a.fetch(ctx, endpoint)
		}
	}
	return body, err
}

func (a *Account) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	return inet.Fetch(ctx, &a.client, inet.Request{
		Method:     http.MethodGet,
		URL:        fmt.Sprintf("https://%s/%s", a.Host(), endpoint),
		UserAgent:  a.UserAgent,
		AuthHeader: "Bearer " + a.token,
	})
}

// ListVehicles returns the vehicles that belong to the account.
func (a *Account) ListVehicles(ctx context.Context) ([]vehicle.Vehicle, error) {
	body, err := a.Get(ctx, "api/1/vehicles")
	if err != nil {
		return nil, err
	}
	var rsp struct {
		Vehicles []vehicle.Vehicle `json:"response"`
		Count    int               `json:"count"`
	}
	if err := json.Unmarshal(body, &rsp); err != nil {
		return nil, fmt.Errorf("unable to parse vehicle list: %w", err)
	}
	log.Debug("Account has %d vehicles", len(rsp.Vehicles))
	return rsp.Vehicles, nil
}
