package retry_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"image-diff-finder/internal/retry"
)

type transportMock struct {
	http.RoundTripper
	fakeRoundTrip func(*http.Request) (*http.Response, error)
}

func (m *transportMock) RoundTrip(request *http.Request) (*http.Response, error) {
	return m.fakeRoundTrip(request)
}

func response(statusCode int) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestTransportRetriesRateLimitedResponse(t *testing.T) {
	attempts := 0

	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					attempts++
					if attempts < 3 {
						return response(http.StatusTooManyRequests), nil
					}
					return response(http.StatusOK), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, 10*time.Millisecond, 5, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequest("GET", "http://fake/", nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()

	if got.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", got.StatusCode, http.StatusOK)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTransportDoesNotRetryClientError(t *testing.T) {
	attempts := 0

	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					attempts++
					return response(http.StatusBadRequest), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, 10*time.Millisecond, 5, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequest("GET", "http://fake/", nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()

	if got.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", got.StatusCode, http.StatusBadRequest)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestTransportGivesUpAfterBudget(t *testing.T) {
	attempts := 0

	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					attempts++
					return response(http.StatusBadGateway), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, 10*time.Millisecond, 2, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequest("GET", "http://fake/", nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()

	if got.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want %d", got.StatusCode, http.StatusBadGateway)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTransportRewindsBodyOnRetry(t *testing.T) {
	var bodies []string

	client := &http.Client{
		Transport: &retry.Transport{
			Base: &transportMock{
				fakeRoundTrip: func(request *http.Request) (*http.Response, error) {
					data, _ := io.ReadAll(request.Body)
					bodies = append(bodies, string(data))
					if len(bodies) < 2 {
						return response(http.StatusTooManyRequests), nil
					}
					return response(http.StatusOK), nil
				},
			},
			RetryStrategy: retry.NewExponentialBackOff(time.Millisecond, 10*time.Millisecond, 5, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		},
	}

	request, err := http.NewRequest("POST", "http://fake/", strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := client.Do(request)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Body.Close()

	for i, body := range bodies {
		if body != "payload" {
			t.Errorf("attempt %d body = %q, want %q", i, body, "payload")
		}
	}
}
