// Package inet sends requests to Fleet API REST endpoints.
package inet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/teslamotors/vehicle-streaming/internal/log"
	"github.com/teslamotors/vehicle-streaming/pkg/connector"
)

// MaxResponseLength caps the byte-length of Fleet API responses.
const MaxResponseLength = connector.MaxMessageLength * 10

func ReadWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

var (
	ErrVehicleNotAwake  = errors.New("vehicle unavailable: vehicle is offline or asleep")
	ErrResponseTooLarge = errors.New("response exceeds maximum length")
)

/*
The regular expression below extracts domains from HTTP bodies:

	{
	  "response": null,
	  "error": "user out of region, use base URL: https://fleet-api.prd.na.vn.cloud.tesla.com, see https://...",
	  "error_description": ""
	}
*/
var baseDomainRE = regexp.MustCompile(`use base URL: https://([-a-z0-9.]*)`)

type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HttpError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests
}

// RedirectDomain returns the Fleet API domain suggested by a 421 Misdirected Request response.
func (e *HttpError) RedirectDomain() (string, bool) {
	if e.Code != http.StatusMisdirectedRequest {
		return "", false
	}
	matches := baseDomainRE.FindStringSubmatch(e.Message)
	if len(matches) == 2 && ValidTeslaDomainSuffix(matches[1]) {
		return matches[1], true
	}
	return "", false
}

func ValidTeslaDomainSuffix(domain string) bool {
	return strings.HasSuffix(domain, ".tesla.com") || strings.HasSuffix(domain, ".tesla.cn") || strings.HasSuffix(domain, ".teslamotors.com")
}

// Request describes a Fleet API call.
type Request struct {
	Method     string
	URL        string
	UserAgent  string
	AuthHeader string
	// Body is sent as-is if it's a []byte and JSON-encoded otherwise. A nil Body sends no payload.
	Body interface{}
}

// Fetch performs r and returns the response body. Non-200 responses are returned as *HttpError
// (or ErrVehicleNotAwake when the server reports the vehicle is asleep).
func Fetch(ctx context.Context, client *http.Client, r Request) ([]byte, error) {
	var payload io.Reader
	if r.Body != nil {
		body, ok := r.Body.([]byte)
		if !ok {
			var err error
			if body, err = json.Marshal(r.Body); err != nil {
				return nil, err
			}
		}
		log.Debug("Sending request to %s: %s", r.URL, body)
		payload = bytes.NewReader(body)
	} else {
		log.Debug("Requesting %s...", r.URL)
	}

	request, err := http.NewRequestWithContext(ctx, r.Method, r.URL, payload)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", r.URL, err)
	}
	request.Header.Set("User-Agent", r.UserAgent)
	request.Header.Set("Content-type", "application/json")
	request.Header.Set("Authorization", r.AuthHeader)
	request.Header.Set("Accept", "*/*")

	result, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", r.URL, err)
	}
	defer result.Body.Close()

	body := make([]byte, MaxResponseLength+1)
	body, err = ReadWithContext(ctx, result.Body, body)
	if err != nil {
		return nil, err
	}
	if len(body) == MaxResponseLength+1 {
		return nil, ErrResponseTooLarge
	}

	log.Debug("Server returned %d: %s: %s", result.StatusCode, http.StatusText(result.StatusCode), body)
	switch result.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusRequestTimeout:
		if bytes.Contains(body, []byte("vehicle is offline")) {
			return nil, ErrVehicleNotAwake
		}
	}
	return nil, &HttpError{Code: result.StatusCode, Message: string(body)}
}
