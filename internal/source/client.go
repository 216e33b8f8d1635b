package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 64 << 10

// Reading is one successful fetch.
type Reading struct {
	Probability float64
	Title       string
	// Volume is optional; nil when the endpoint omits it.
	Volume *int
	At     time.Time
}

type payload struct {
	Probability *float64 `json:"probability"`
	Title       *string  `json:"title"`
	Volume      *int     `json:"volume"`
}

type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches readings from an HTTP endpoint. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config, hc *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("source: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "probmeter"
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, now: time.Now}, nil
}

// Fetch performs one GET and decodes the probability document.
//
// Errors are *ConnectivityError, *ProtocolError or *ParseError.
func (c *Client) Fetch(ctx context.Context) (Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return Reading{}, fmt.Errorf("source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Reading{}, &ConnectivityError{URL: c.cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Reading{}, &ProtocolError{URL: c.cfg.URL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Reading{}, &ConnectivityError{URL: c.cfg.URL, Err: err}
	}
	if len(body) > maxBodyBytes {
		return Reading{}, &ParseError{Reason: fmt.Sprintf("body exceeds %d bytes", maxBodyBytes)}
	}

	r, err := Decode(body)
	if err != nil {
		return Reading{}, err
	}
	r.At = c.now().UTC()
	return r, nil
}

// Decode parses a probability document. The probability is returned as sent;
// clamping is the meter's job.
func Decode(body []byte) (Reading, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return Reading{}, &ParseError{Reason: "document is not an object", Err: err}
		}
		if errors.As(err, &typeErr) {
			return Reading{}, &ParseError{Reason: fmt.Sprintf("field %q has wrong type", typeErr.Field), Err: err}
		}
		return Reading{}, &ParseError{Reason: "invalid json", Err: err}
	}
	if p.Probability == nil {
		return Reading{}, &ParseError{Reason: `missing "probability"`}
	}
	r := Reading{Probability: *p.Probability, Volume: p.Volume}
	if p.Title != nil {
		r.Title = strings.TrimSpace(*p.Title)
	}
	return r, nil
}
