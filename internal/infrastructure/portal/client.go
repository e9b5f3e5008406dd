package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	breakerName = "factohr"

	acceptJSON     = "application/json, text/javascript, */*; q=0.01"
	formURLEncoded = "application/x-www-form-urlencoded; charset=UTF-8"

	// Login pages are small; anything larger is not the page we expect.
	maxBodyBytes = 2 << 20
)

type Direction string

const (
	ClockIn  Direction = "clock-in"
	ClockOut Direction = "clock-out"
)

func (d Direction) punch() string {
	if d == ClockIn {
		return "punch in"
	}
	return "punch out"
}

type Credentials struct {
	Username string
	Password string
}

type Result struct {
	Message     string
	CompletedAt time.Time
}

// Client drives the FactoHR web login and attendance submission. It keeps
// no session between calls: every Submit logs in from scratch.
type Client struct {
	http      *http.Client
	baseURL   string
	tenantURL string
	zone      string
	userAgent string
	breaker   *gobreaker.CircuitBreaker
	metrics   *observability.Metrics
	logger    *observability.Logger
	tracer    *observability.Tracer
	now       func() time.Time
}

func NewClient(cfg config.PortalConfig, metrics *observability.Metrics, logger *observability.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			// The login POST answers with cookies that must not be lost to a redirect.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 0 && via[0].Method == http.MethodPost {
					return http.ErrUseLastResponse
				}
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		baseURL:   base,
		tenantURL: base + "/" + strings.Trim(cfg.Tenant, "/"),
		zone:      cfg.Zone,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
		logger:    logger,
		tracer:    observability.NewTracer("portal"),
		now:       time.Now,
	}

	if cfg.CircuitBreaker.Enabled {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        breakerName,
			MaxRequests: 1,
			Timeout:     cfg.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.ConsecutiveFailures >= cfg.CircuitBreaker.MaxFailures {
					return true
				}
				if counts.Requests < 3 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.CircuitBreaker.FailureThreshold
			},
			IsSuccessful: func(err error) bool {
				return !countsAgainstBreaker(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if logger != nil {
					logger.Warn(context.Background(), "Portal circuit breaker state changed",
						zap.String("breaker", name),
						zap.String("from_state", from.String()),
						zap.String("to_state", to.String()),
					)
				}
				if metrics != nil {
					metrics.CircuitBreakerEvents.WithLabelValues(name, "state_change", to.String()).Inc()
					metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
				}
			},
		})
	}

	return c
}

// BreakerState is "closed", "half-open" or "open"; "disabled" without a breaker.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Submit logs in with creds and records one punch. A nil error means the
// portal accepted the punch; any other outcome is a *LoginError, an
// *ActionError or ErrUnavailable.
func (c *Client) Submit(ctx context.Context, creds Credentials, dir Direction) (res *Result, err error) {
	ctx, span := c.tracer.Start(ctx, "portal.Submit", attribute.String("direction", string(dir)))
	defer func() { observability.EndSpan(span, err) }()

	if c.breaker == nil {
		return c.submit(ctx, creds, dir)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.submit(ctx, creds, dir)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if c.metrics != nil {
			c.metrics.CircuitBreakerEvents.WithLabelValues(breakerName, "rejected", "open").Inc()
		}
		return nil, ErrUnavailable
	}
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *Client) submit(ctx context.Context, creds Credentials, dir Direction) (*Result, error) {
	cookies, token, err := c.loadLoginPage(ctx)
	if err != nil {
		return nil, err
	}

	cookies, err = c.login(ctx, creds, cookies, token)
	if err != nil {
		return nil, err
	}

	return c.markAttendance(ctx, cookies, dir)
}

func (c *Client) loginPageURL() string {
	return c.tenantURL + "/Security/Login"
}

func (c *Client) loadLoginPage(ctx context.Context) (cookies, token string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.loginPageURL(), nil)
	if err != nil {
		return "", "", &LoginError{Message: "Failed to build login page request", Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.do(req, "login_page")
	if err != nil {
		return "", "", &LoginError{Message: "Failed to load FactoHR login page: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", &LoginError{
			Message:    fmt.Sprintf("FactoHR login page returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", &LoginError{Message: "Failed to read FactoHR login page: " + err.Error(), Err: err}
	}

	token = ExtractVerificationToken(string(body))
	if token == "" {
		return "", "", &LoginError{Message: "Verification token not found on FactoHR login page", StatusCode: resp.StatusCode}
	}

	return cookieHeader(resp), token, nil
}

type loginResponse struct {
	Status      string `json:"Status"`
	RedirectURL string `json:"RedirectUrl"`
	Message     string `json:"Message"`
}

func (c *Client) login(ctx context.Context, creds Credentials, cookies, token string) (string, error) {
	form := url.Values{}
	form.Set("Username", creds.Username)
	form.Set("Password", creds.Password)
	form.Set("LoginType", "Normal")
	form.Set("IsWebRequest", "true")
	form.Set("IsValidateMobile", "")
	form.Set("__RequestVerificationToken", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/API/ACL/ValidateLoginCreadentials", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &LoginError{Message: "Failed to build login request", Err: err}
	}
	req.Header.Set("Content-Type", formURLEncoded)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Cookie", cookies)
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.loginPageURL())
	req.Header.Set("Origin", c.baseURL)

	resp, err := c.do(req, "login")
	if err != nil {
		return "", &LoginError{Message: "Failed to login to FactoHR: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &LoginError{
			Message:    fmt.Sprintf("FactoHR login returned status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var body loginResponse
	// A non-JSON body is a rejection like any other; Message stays empty.
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body)

	if body.Status != "Success" && body.RedirectURL == "" {
		msg := body.Message
		if msg == "" {
			msg = "Login failed"
		}
		return "", &LoginError{Message: msg, StatusCode: resp.StatusCode}
	}

	if fresh := cookieHeader(resp); fresh != "" {
		cookies = fresh
	}
	return cookies, nil
}

func (c *Client) markAttendance(ctx context.Context, cookies string, dir Direction) (*Result, error) {
	q := url.Values{}
	q.Set("checkIn", strconv.FormatBool(dir == ClockIn))
	q.Set("remarks", "")
	q.Set("zone", c.zone)
	q.Set("singleInOutPunch", "false")
	q.Set("ishomepage", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tenantURL+"/API/Dashboard/SubmitAttendance1?"+encodeOrdered(q), nil)
	if err != nil {
		return nil, &ActionError{Message: "Failed to build attendance request", Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Cookie", cookies)
	req.Header.Set("Accept", acceptJSON)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.do(req, "action")
	if err != nil {
		return nil, &ActionError{Message: "Failed to mark attendance: " + err.Error(), Err: err}
	}
	completedAt := c.now()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ActionError{Message: "Failed to mark attendance", StatusCode: resp.StatusCode}
	}

	return &Result{
		Message:     "Successfully marked " + dir.punch(),
		CompletedAt: completedAt,
	}, nil
}

func (c *Client) do(req *http.Request, step string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	status := "transport_error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if c.metrics != nil {
		c.metrics.RecordPortalRequest(step, status, time.Since(start))
	}
	if c.logger != nil {
		c.logger.Debug(req.Context(), "Portal request",
			zap.String("step", step),
			zap.String("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return resp, err
}

// cookieHeader folds every Set-Cookie into a single Cookie header value,
// keeping only the name=value pair of each.
func cookieHeader(resp *http.Response) string {
	values := resp.Header.Values("Set-Cookie")
	pairs := make([]string, 0, len(values))
	for _, v := range values {
		pair, _, _ := strings.Cut(v, ";")
		pairs = append(pairs, pair)
	}
	return strings.Join(pairs, "; ")
}

// encodeOrdered keeps the portal's documented parameter order; url.Values
// would sort the keys.
func encodeOrdered(q url.Values) string {
	keys := []string{"checkIn", "remarks", "zone", "singleInOutPunch", "ishomepage"}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(q.Get(k)))
	}
	return strings.Join(parts, "&")
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
