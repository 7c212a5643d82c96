// Package portal is the adapter for the appointment portal. It is the only
// package that knows the portal's URL shapes, header profiles, form fields,
// and markup; everything above it works with parsed values.
package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/aigrvch/visabot/pkg/logging"
)

const (
	host = "ais.usvisa-info.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, " +
		"like Gecko) Chrome/120.0.0.0 YaBrowser/24.1.0.0 Safari/537.36"
	secChUA = `"Not_A Brand";v="8", "Chromium";v="120", "YaBrowser";v="24.1", "Yowser";v="2.5"`

	csrfTokenHeader = "X-CSRF-Token"

	defaultTimeout = 30 * time.Second
)

// Client talks to the portal on behalf of one signed-in session. A client is
// owned by exactly one session manager and is not safe for concurrent use.
type Client struct {
	country string
	baseURL string // https://{host}/en-{country}/niv
	origin  string

	hc      *http.Client
	logger  *logging.Logger
	session Session
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, e.g. one routed through a proxy.
// A cookie jar is installed on it if it has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL points the client at a different portal root. Used in tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(base, "/") + "/en-" + c.country + "/niv"
		c.origin = strings.TrimSuffix(base, "/")
	}
}

// NewClient creates a portal client for one country.
func NewClient(country string, opts ...Option) *Client {
	c := &Client{
		country: country,
		baseURL: "https://" + host + "/en-" + country + "/niv",
		origin:  "https://" + host,
		hc:      &http.Client{Timeout: defaultTimeout},
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c.hc.Jar = jar
	}
	return c
}

// Session returns the current authentication artifacts.
func (c *Client) Session() Session {
	return c.session
}

// SignIn performs the two-step login exchange: fetch the sign-in page for a
// pre-auth cookie and CSRF token, then submit the credentials with that
// token. Any previous session state is discarded first.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	jar, _ := cookiejar.New(nil)
	c.hc.Jar = jar
	c.session = Session{}

	signInURL := c.baseURL + "/users/sign_in"

	c.logger.Debug("portal: get sign in page")
	body, err := c.get(ctx, signInURL, c.documentHeaders(signInURL), nil)
	if err != nil {
		return fmt.Errorf("portal: fetch sign in page: %w", err)
	}
	token, err := extractCSRFToken(body)
	if err != nil {
		return err
	}

	form := url.Values{
		"user[email]":      {email},
		"user[password]":   {password},
		"policy_confirmed": {"1"},
		"commit":           {"Sign In"},
	}
	headers := c.defaultHeaders()
	headers.Set(csrfTokenHeader, token)
	headers.Set("Accept", "*/*;q=0.5, text/javascript, application/javascript, "+
		"application/ecmascript, application/x-ecmascript")
	headers.Set("Referer", signInURL)
	headers.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	c.logger.Debug("portal: post sign in")
	if _, err := c.do(ctx, http.MethodPost, signInURL, headers, nil, strings.NewReader(form.Encode())); err != nil {
		return fmt.Errorf("portal: sign in: %w", err)
	}

	c.session = Session{CSRFToken: token, ValidSince: time.Now()}
	return nil
}

// FetchDashboard loads the account landing page and parses the manageable
// appointment records and the currently held appointment.
func (c *Client) FetchDashboard(ctx context.Context) (Dashboard, error) {
	c.logger.Debug("portal: get dashboard")
	body, err := c.get(ctx, c.baseURL, c.documentHeaders(c.baseURL), nil)
	if err != nil {
		return Dashboard{}, fmt.Errorf("portal: fetch dashboard: %w", err)
	}
	return parseDashboard(body, c.country)
}

// FetchAppointmentPage loads the reschedule page for a schedule, refreshing
// the page-scoped CSRF token as a side effect. The token on this page is the
// one the booking POST must present.
func (c *Client) FetchAppointmentPage(ctx context.Context, scheduleID string) (AppointmentPage, error) {
	pageURL := c.scheduleURL(scheduleID, "/appointment")
	headers := c.documentHeaders(c.scheduleURL(scheduleID, "/continue_actions"))
	headers.Set("Sec-Fetch-User", "?1")

	c.logger.Debug("portal: get appointment page", "schedule", scheduleID)
	body, err := c.get(ctx, pageURL, headers, nil)
	if err != nil {
		return AppointmentPage{}, fmt.Errorf("portal: fetch appointment page: %w", err)
	}

	token, err := extractCSRFToken(body)
	if err != nil {
		return AppointmentPage{}, err
	}
	c.session = Session{CSRFToken: token, ValidSince: time.Now()}

	return parseAppointmentPage(body)
}

// AvailableDates returns the facility's open dates, ascending. A non-nil
// companion constraint scopes the query to companion slots eligible for the
// given primary slot.
func (c *Client) AvailableDates(ctx context.Context, scheduleID, facilityID string, companion *CompanionConstraint) ([]string, error) {
	query := url.Values{"appointments[expedite]": {"false"}}
	addCompanionConstraint(query, companion)

	c.logger.Debug("portal: get available dates", "facility", facilityID)
	body, err := c.get(ctx,
		c.scheduleURL(scheduleID, "/appointment/days/"+facilityID+".json"),
		c.jsonHeaders(c.scheduleURL(scheduleID, "/appointment")),
		query)
	if err != nil {
		return nil, fmt.Errorf("portal: fetch dates: %w", err)
	}

	var days []struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal([]byte(body), &days); err != nil {
		return nil, fmt.Errorf("portal: decode dates: %w", err)
	}
	dates := make([]string, 0, len(days))
	for _, d := range days {
		if d.Date != "" {
			dates = append(dates, d.Date)
		}
	}
	return dates, nil
}

// AvailableTimes returns the open times for one date, ascending. The feed
// carries two lists; available_times is checked first and the non-empty one
// is authoritative.
func (c *Client) AvailableTimes(ctx context.Context, scheduleID, facilityID, date string, companion *CompanionConstraint) ([]string, error) {
	query := url.Values{
		"date":                   {date},
		"appointments[expedite]": {"false"},
	}
	addCompanionConstraint(query, companion)

	c.logger.Debug("portal: get available times", "facility", facilityID, "date", date)
	body, err := c.get(ctx,
		c.scheduleURL(scheduleID, "/appointment/times/"+facilityID+".json"),
		c.jsonHeaders(c.scheduleURL(scheduleID, "/appointment")),
		query)
	if err != nil {
		return nil, fmt.Errorf("portal: fetch times: %w", err)
	}

	var times struct {
		AvailableTimes []string `json:"available_times"`
		BusinessTimes  []string `json:"business_times"`
	}
	if err := json.Unmarshal([]byte(body), &times); err != nil {
		return nil, fmt.Errorf("portal: decode times: %w", err)
	}
	if len(times.AvailableTimes) > 0 {
		return times.AvailableTimes, nil
	}
	return times.BusinessTimes, nil
}

// Book submits one booking POST carrying the primary slot and, when present,
// the companion slot, authenticated by the current page-scoped CSRF token.
// A nil error means only that the portal accepted the request; callers must
// re-read the dashboard to learn whether it took effect.
func (c *Client) Book(ctx context.Context, scheduleID string, req BookingRequest) error {
	form := url.Values{
		"authenticity_token":                 {c.session.CSRFToken},
		"confirmed_limit_message":            {"1"},
		"use_consulate_appointment_capacity": {"true"},
	}
	form.Set("appointments[consulate_appointment][facility_id]", req.FacilityID)
	form.Set("appointments[consulate_appointment][date]", req.Slot.Date)
	form.Set("appointments[consulate_appointment][time]", req.Slot.Time)
	if req.Companion != nil {
		form.Set("appointments[asc_appointment][facility_id]", req.CompanionFacilityID)
		form.Set("appointments[asc_appointment][date]", req.Companion.Date)
		form.Set("appointments[asc_appointment][time]", req.Companion.Time)
	}

	pageURL := c.scheduleURL(scheduleID, "/appointment")
	headers := c.documentHeaders(pageURL)
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Sec-Fetch-User", "?1")
	headers.Set("Origin", c.origin)

	c.logger.Debug("portal: post booking", "slot", req.Slot.String())
	if _, err := c.do(ctx, http.MethodPost, pageURL, headers, nil, strings.NewReader(form.Encode())); err != nil {
		return fmt.Errorf("portal: book: %w", err)
	}
	return nil
}

func addCompanionConstraint(query url.Values, companion *CompanionConstraint) {
	if companion == nil {
		return
	}
	query.Set("consulate_id", companion.FacilityID)
	query.Set("consulate_date", companion.Date)
	query.Set("consulate_time", companion.Time)
}

func (c *Client) scheduleURL(scheduleID, suffix string) string {
	return c.baseURL + "/schedule/" + scheduleID + suffix
}

func (c *Client) get(ctx context.Context, rawURL string, headers http.Header, query url.Values) (string, error) {
	return c.do(ctx, http.MethodGet, rawURL, headers, query, nil)
}

func (c *Client) do(ctx context.Context, method, rawURL string, headers http.Header, query url.Values, body io.Reader) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return "", err
	}
	req.Header = headers
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode >= 400 {
		return string(b), &StatusError{Code: res.StatusCode, URL: req.URL.Path}
	}
	return string(b), nil
}

func (c *Client) defaultHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("sec-ch-ua", secChUA)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", "Windows")
	return h
}

func (c *Client) documentHeaders(referer string) http.Header {
	h := c.defaultHeaders()
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,"+
		"image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
	h.Set("Accept-Language", "en,en-US;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Cache-Control", "no-store")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Referer", referer)
	return h
}

func (c *Client) jsonHeaders(referer string) http.Header {
	h := c.defaultHeaders()
	h.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	h.Set("Accept-Language", "en,en-US;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Referer", referer)
	if c.session.CSRFToken != "" {
		h.Set(csrfTokenHeader, c.session.CSRFToken)
	}
	return h
}
