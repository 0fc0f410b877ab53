// Package calendar queries external availability through the Cal.com v1 API
// and normalizes it to a canonical slot representation.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/healguid/booking-api/pkg/logging"
)

var calTracer = otel.Tracer("healguid.internal.calendar")

// ErrProviderUnavailable is returned for any failure to obtain availability:
// network error, non-2xx response or malformed payload. Callers distinguish
// "couldn't ask" from "no slots" through this sentinel and apply their own
// fallback policy.
var ErrProviderUnavailable = errors.New("calendar provider unavailable")

const (
	defaultBaseURL    = "https://api.cal.com/v1"
	defaultTimeout    = 10 * time.Second
	defaultWindowDays = 14
	defaultTimezone   = "Europe/London"

	slotDurationMinutes = 60

	retryDelay = 500 * time.Millisecond
)

// Slot is a canonical availability window.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	// Duration is the slot length in minutes.
	Duration int `json:"duration"`
}

// Range is the queried availability window.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability is the normalized provider response: chronologically sorted
// slots in a single fixed timezone.
type Availability struct {
	Range    Range  `json:"range"`
	Timezone string `json:"timezone"`
	Slots    []Slot `json:"slots"`
}

// Client fetches availability from Cal.com.
type Client struct {
	baseURL    string
	apiKey     string
	timezone   string
	windowDays int
	httpClient *http.Client
	logger     *logging.Logger
	now        func() time.Time
}

// NewClient creates a Cal.com availability client.
func NewClient(apiKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		timezone:   defaultTimezone,
		windowDays: defaultWindowDays,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// WithBaseURL overrides the API base URL (for testing).
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = baseURL
	}
	return c
}

// WithTimezone overrides the canonical timezone sent to the provider.
func (c *Client) WithTimezone(tz string) *Client {
	if tz != "" {
		c.timezone = tz
	}
	return c
}

// WithWindow overrides the forward availability window in days.
func (c *Client) WithWindow(days int) *Client {
	if days > 0 {
		c.windowDays = days
	}
	return c
}

// WithTimeout overrides the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient.Timeout = d
	}
	return c
}

// calSlotsResponse is the v1 /slots payload: slot times grouped by day.
type calSlotsResponse struct {
	Slots map[string][]struct {
		Time string `json:"time"`
	} `json:"slots"`
}

// FetchAvailability queries the forward window for an event type and
// normalizes the response. The request is retried once with a short delay on
// network errors and 5xx responses.
func (c *Client) FetchAvailability(ctx context.Context, eventTypeID string) (*Availability, error) {
	ctx, span := calTracer.Start(ctx, "cal.fetch_availability")
	defer span.End()
	span.SetAttributes(attribute.String("healguid.event_type_id", eventTypeID))

	rangeStart := c.now().UTC()
	rangeEnd := rangeStart.AddDate(0, 0, c.windowDays)

	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("eventTypeId", eventTypeID)
	q.Set("startTime", rangeStart.Format(time.RFC3339))
	q.Set("endTime", rangeEnd.Format(time.RFC3339))
	q.Set("timeZone", c.timezone)
	reqURL := c.baseURL + "/slots?" + q.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		c.logger.Error("availability fetch failed", "error", err, "event_type_id", eventTypeID)
		return nil, err
	}

	var parsed calSlotsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ErrProviderUnavailable, err)
	}

	slots := make([]Slot, 0)
	for _, daySlots := range parsed.Slots {
		for _, s := range daySlots {
			if s.Time == "" {
				continue
			}
			start, err := time.Parse(time.RFC3339, s.Time)
			if err != nil {
				c.logger.Warn("skipping unparseable slot", "value", s.Time, "error", err)
				continue
			}
			start = start.UTC()
			slots = append(slots, Slot{
				Start:    start,
				End:      start.Add(slotDurationMinutes * time.Minute),
				Duration: slotDurationMinutes,
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	return &Availability{
		Range:    Range{Start: rangeStart, End: rangeEnd},
		Timezone: c.timezone,
		Slots:    slots,
	}, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
			}
		}
		body, retryable, err := c.getOnce(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, reqURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return data, false, nil
}
