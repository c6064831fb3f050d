package retry

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On decides which failures are worth another attempt. The defaults target
// rate-limited HTTP APIs: transient connectivity problems, gateway errors and
// 429 responses retry, everything else surfaces immediately.
type On struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	rateLimited    bool
	statusCodes    []int
}

func NewDefaultRetryOn() *On {
	return &On{
		serverError:    false,
		gatewayError:   true,
		connectFailure: true,
		rateLimited:    true,
		statusCodes:    []int{},
	}
}

func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, s := range strings.Split(s, ",") {
		switch s {
		case "5xx":
			o.serverError = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "rate-limited":
			o.rateLimited = true
		default:
			statusCode, err := strconv.Atoi(s)
			if err != nil {
				return nil, xerrors.Errorf("invalid retryOn: %s", s)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

func (o *On) CheckResponse(response *http.Response) bool {
	if (o.serverError && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(o.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(o.rateLimited && response.StatusCode == http.StatusTooManyRequests) {
		return true
	}

	for _, i := range o.statusCodes {
		if i == response.StatusCode {
			return true
		}
	}

	return false
}

func (o *On) CheckError(err error) bool {
	type temporary interface{ Temporary() bool }
	var terr temporary
	if (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) {
		if o.connectFailure || o.serverError {
			return true
		}
	}
	return false
}
