package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
)

// Mirror frontends sit behind bot protection; plain Go-http-client requests
// get walled. Send the headers a browser would.
var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "de,en-US;q=0.7,en;q=0.3",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-User":  "?1",
	"TE":              "trailers",
}

const (
	captchaText = "Enable JavaScript and cookies to continue"
	maxBody     = 256 << 10 // response bodies beyond this are cut, not errors
)

// Error is a failed fetch, already categorized for the error log.
// KnownBad responses (bot walls, rate limits, gateway errors) carry no body
// so repeated failures don't blow up storage.
type Error struct {
	Category domain.ErrorCategory
	Message  string
	Status   int    // 0 for transport errors
	Body     string // empty for known-bad statuses
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Record converts the fetch failure into an ErrorRecord for the instance.
func (e *Error) Record(id domain.InstanceID, at time.Time) *domain.ErrorRecord {
	rec := &domain.ErrorRecord{
		InstanceID: id,
		At:         at,
		Category:   e.Category,
		Message:    e.Message,
	}
	if e.Status != 0 {
		status := e.Status
		rec.HTTPStatus = &status
	}
	if e.Body != "" {
		body := e.Body
		rec.HTTPBody = &body
	}
	return rec
}

// Client wraps http.Client with the header set, timeout and response
// classification shared by every outbound request.
type Client struct {
	http      *http.Client
	userAgent string
}

// New builds a client with the given per-request timeout. The contact URL
// ends up in the User-Agent so instance operators can find us.
func New(timeout time.Duration, contactURL string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		userAgent: fmt.Sprintf("mirrorwatch (+%s)", contactURL),
	}
}

// Get fetches url and returns (status, body) on HTTP success. Everything
// else comes back as *Error: transport problems as transient, non-2xx as
// either known-bad (categorized, body dropped) or a generic bad response
// with a bounded body for the error log.
func (c *Client) Get(ctx context.Context, url, bearer string) (int, string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", &Error{Category: domain.ErrParse, Message: "invalid URL: " + err.Error()}
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", transportError(err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		if readErr != nil {
			return code, "", &Error{
				Category: domain.ErrTransientNetwork,
				Message:  "reading response body: " + readErr.Error(),
				Status:   code,
			}
		}
		return code, string(body), nil
	}
	return code, "", classifyStatus(code, string(body))
}

func transportError(err error) *Error {
	msg := err.Error()
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		msg = "request timed out"
	}
	return &Error{Category: domain.ErrTransientNetwork, Message: msg}
}

// classifyStatus buckets a non-success response. Known noise keeps only a
// category; anything else keeps the body for debugging.
func classifyStatus(code int, body string) *Error {
	switch {
	case code == 403 && strings.Contains(body, captchaText):
		return &Error{Category: domain.ErrKnownBadResponse, Message: "captcha wall", Status: code}
	case code == 403 && strings.Contains(body, "You have been blocked"):
		return &Error{Category: domain.ErrKnownBadResponse, Message: "blocked by CDN", Status: code}
	case code == 429 && strings.Contains(body, "Instance has been rate limited"):
		return &Error{Category: domain.ErrKnownBadResponse, Message: "instance rate limited", Status: code}
	case code == 404:
		return &Error{Category: domain.ErrKnownBadResponse, Message: "not found", Status: code}
	case code >= 502 && code <= 504:
		return &Error{Category: domain.ErrKnownBadResponse, Message: "bad gateway", Status: code}
	case code >= 520 && code <= 527:
		return &Error{Category: domain.ErrKnownBadResponse, Message: "CDN error", Status: code}
	}
	return &Error{
		Category: domain.ErrTransientNetwork,
		Message:  fmt.Sprintf("unexpected status %d %s", code, http.StatusText(code)),
		Status:   code,
		Body:     body,
	}
}
