package retry

import (
	"context"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that replays a request according to its
// RetryStrategy whenever RetryOn classifies the outcome as retriable. The
// whole-request deadline belongs to the enclosing http.Client.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	RetryOn       *On
}

type contextKey string

const retryCountContextKey contextKey = "retryCountKey"

func getRetryCount(ctx context.Context) uint {
	v := ctx.Value(retryCountContextKey)

	i, ok := v.(uint)
	if !ok {
		return 0
	}

	return i
}

func setRetryCount(ctx context.Context, retryCount uint) context.Context {
	return context.WithValue(ctx, retryCountContextKey, retryCount)
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	retryCount := getRetryCount(request.Context())
	sleep, exceeded := t.retryStrategy().Sleep(retryCount)

	response, err := t.base().RoundTrip(request)
	if err != nil {
		if !exceeded && t.RetryOn != nil && t.RetryOn.CheckError(err) {
			if err := t.wait(request.Context(), sleep); err != nil {
				return nil, err
			}
			retried, err := rewindBody(request)
			if err != nil {
				return nil, err
			}
			return t.RoundTrip(retried.WithContext(setRetryCount(request.Context(), retryCount+1)))
		}
		return nil, err
	}
	if !exceeded && t.RetryOn != nil && t.RetryOn.CheckResponse(response) {
		if err := t.wait(request.Context(), sleep); err != nil {
			return nil, err
		}
		retried, err := rewindBody(request)
		if err != nil {
			return nil, err
		}
		return t.RoundTrip(retried.WithContext(setRetryCount(request.Context(), retryCount+1)))
	}
	return response, nil
}

// rewindBody restores a replayable request body before a retry; requests
// without GetBody are replayed as-is.
func rewindBody(request *http.Request) (*http.Request, error) {
	if request.Body == nil || request.GetBody == nil {
		return request, nil
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, err
	}
	request.Body = body
	return request, nil
}

func (t *Transport) wait(ctx context.Context, sleep time.Duration) error {
	timer := time.NewTimer(sleep)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}

func (t *Transport) CancelRequest(request *http.Request) {
	type canceler interface {
		CancelRequest(*http.Request)
	}
	if cr, ok := t.base().(canceler); ok {
		cr.CancelRequest(request)
	}
}
