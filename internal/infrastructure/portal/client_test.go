package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/infrastructure/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var realToken = strings.Repeat("Ab3_", 20)

func loginPage(token string) string {
	return `<html><body>
<script>var t = '<input name="__RequestVerificationToken" type="hidden" value="getAntiForgeryToken()" />';</script>
<form><input name="__RequestVerificationToken" type="hidden" value="` + token + `" /></form>
</body></html>`
}

// fakePortal emulates the three FactoHR endpoints and records what it saw.
type fakePortal struct {
	loginStatus   int
	loginBody     string
	loginCookies  []string
	actionStatus  int
	pageStatus    int
	page          string
	gotForm       map[string]string
	gotLoginHdr   http.Header
	gotActionHdr  http.Header
	gotActionURL  string
	actionCalls   atomic.Int32
	requestsTotal atomic.Int32
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		loginStatus:  http.StatusOK,
		loginBody:    `{"Status":"Success"}`,
		loginCookies: []string{"ASP.NET_SessionId=sess42; path=/; HttpOnly", ".ASPXAUTH=auth42; path=/; secure"},
		actionStatus: http.StatusOK,
		pageStatus:   http.StatusOK,
		page:         loginPage(realToken),
	}
}

func (f *fakePortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requestsTotal.Add(1)
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/broseindia/Security/Login":
		w.Header().Add("Set-Cookie", "__RequestVerificationToken_L2Jyb3Nl=cookietok; path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "ASP.NET_SessionId=pre; path=/")
		w.WriteHeader(f.pageStatus)
		fmt.Fprint(w, f.page)
	case r.Method == http.MethodPost && r.URL.Path == "/API/ACL/ValidateLoginCreadentials":
		_ = r.ParseForm()
		f.gotForm = map[string]string{}
		for k := range r.PostForm {
			f.gotForm[k] = r.PostForm.Get(k)
		}
		f.gotLoginHdr = r.Header.Clone()
		for _, c := range f.loginCookies {
			w.Header().Add("Set-Cookie", c)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.loginStatus)
		fmt.Fprint(w, f.loginBody)
	case r.Method == http.MethodGet && r.URL.Path == "/broseindia/API/Dashboard/SubmitAttendance1":
		f.actionCalls.Add(1)
		f.gotActionHdr = r.Header.Clone()
		f.gotActionURL = r.URL.RequestURI()
		w.WriteHeader(f.actionStatus)
		fmt.Fprint(w, `{"ok":true}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, breaker bool) (*Client, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewTestMetrics()
	logger, _ := observability.NewLogger("error", "console")
	c := NewClient(config.PortalConfig{
		BaseURL:   srv.URL + "/",
		Tenant:    "broseindia",
		Zone:      "Asia/Calcutta",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Timeout:   2 * time.Second,
		CircuitBreaker: config.CBConfig{
			Enabled:          breaker,
			MaxFailures:      2,
			FailureThreshold: 0.6,
			ResetTimeout:     time.Minute,
		},
	}, metrics, logger)
	return c, metrics
}

func TestSubmit_ClockInSuccess(t *testing.T) {
	fp := newFakePortal()
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, metrics := newTestClient(t, srv, true)
	fixed := time.Date(2026, 3, 2, 3, 40, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	res, err := c.Submit(context.Background(), Credentials{Username: "E1024", Password: "s3cret"}, ClockIn)
	require.NoError(t, err)
	assert.Equal(t, "Successfully marked punch in", res.Message)
	assert.Equal(t, fixed, res.CompletedAt)

	// 1. Login form fields
	assert.Equal(t, map[string]string{
		"Username":                   "E1024",
		"Password":                   "s3cret",
		"LoginType":                  "Normal",
		"IsWebRequest":               "true",
		"IsValidateMobile":           "",
		"__RequestVerificationToken": realToken,
	}, fp.gotForm)

	// 2. Login headers carry the login-page cookies
	assert.Equal(t, "__RequestVerificationToken_L2Jyb3Nl=cookietok; ASP.NET_SessionId=pre", fp.gotLoginHdr.Get("Cookie"))
	assert.Equal(t, "XMLHttpRequest", fp.gotLoginHdr.Get("X-Requested-With"))
	assert.Equal(t, "application/x-www-form-urlencoded; charset=UTF-8", fp.gotLoginHdr.Get("Content-Type"))
	assert.Equal(t, srv.URL+"/broseindia/Security/Login", fp.gotLoginHdr.Get("Referer"))
	assert.Equal(t, srv.URL, fp.gotLoginHdr.Get("Origin"))
	assert.Contains(t, fp.gotLoginHdr.Get("User-Agent"), "Mozilla/5.0")

	// 3. Action uses the login cookies, not the page cookies
	assert.Equal(t, "ASP.NET_SessionId=sess42; .ASPXAUTH=auth42", fp.gotActionHdr.Get("Cookie"))
	assert.Equal(t, "application/json, text/javascript, */*; q=0.01", fp.gotActionHdr.Get("Accept"))
	assert.Equal(t,
		"/broseindia/API/Dashboard/SubmitAttendance1?checkIn=true&remarks=&zone=Asia%2FCalcutta&singleInOutPunch=false&ishomepage=true",
		fp.gotActionURL)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PortalRequestsTotal.WithLabelValues("action", "200")))
}

func TestSubmit_ClockOutKeepsPageCookiesWhenLoginSetsNone(t *testing.T) {
	fp := newFakePortal()
	fp.loginCookies = nil
	fp.loginBody = `{"Status":"","RedirectUrl":"/broseindia/Home"}`
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, _ := newTestClient(t, srv, false)
	res, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "p"}, ClockOut)
	require.NoError(t, err)
	assert.Equal(t, "Successfully marked punch out", res.Message)
	assert.Equal(t, "__RequestVerificationToken_L2Jyb3Nl=cookietok; ASP.NET_SessionId=pre", fp.gotActionHdr.Get("Cookie"))
	assert.Contains(t, fp.gotActionURL, "checkIn=false")
}

func TestSubmit_LoginRejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"portal message surfaced", `{"Status":"Fail","Message":"Invalid username or password"}`, "Invalid username or password"},
		{"no message", `{"Status":"Fail"}`, "Login failed"},
		{"not json", `<html>oops</html>`, "Login failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakePortal()
			fp.loginBody = tt.body
			srv := httptest.NewServer(fp)
			defer srv.Close()

			c, _ := newTestClient(t, srv, true)
			res, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "bad"}, ClockIn)
			assert.Nil(t, res)

			var le *LoginError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.wantMsg, le.Error())
			assert.True(t, le.Rejected())
			assert.Zero(t, fp.actionCalls.Load())
		})
	}
}

func TestSubmit_TokenMissing(t *testing.T) {
	fp := newFakePortal()
	fp.page = `<html><input name="__RequestVerificationToken" value="getAntiForgeryToken()" /></html>`
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, _ := newTestClient(t, srv, false)
	_, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "p"}, ClockIn)

	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Message, "Verification token not found")
	assert.Nil(t, fp.gotForm)
}

func TestSubmit_ActionFailed(t *testing.T) {
	fp := newFakePortal()
	fp.actionStatus = http.StatusBadRequest
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, _ := newTestClient(t, srv, false)
	_, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "p"}, ClockIn)

	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Failed to mark attendance", ae.Error())
	assert.Equal(t, http.StatusBadRequest, ae.StatusCode)
}

func TestSubmit_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, _ := newTestClient(t, srv, false)
	_, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "p"}, ClockIn)

	var le *LoginError
	require.ErrorAs(t, err, &le)
	assert.False(t, le.Rejected())
	assert.True(t, strings.HasPrefix(le.Message, "Failed to load FactoHR login page: "))
}

func TestSubmit_BreakerOpensOnOutages(t *testing.T) {
	fp := newFakePortal()
	fp.pageStatus = http.StatusServiceUnavailable
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, _ := newTestClient(t, srv, true)
	creds := Credentials{Username: "u", Password: "p"}
	assert.Equal(t, "closed", c.BreakerState())

	// 1. Two consecutive 5xx trip the breaker
	for i := 0; i < 2; i++ {
		_, err := c.Submit(context.Background(), creds, ClockIn)
		var le *LoginError
		require.ErrorAs(t, err, &le)
	}

	// 2. Further calls fail fast without touching the portal
	before := fp.requestsTotal.Load()
	_, err := c.Submit(context.Background(), creds, ClockIn)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, before, fp.requestsTotal.Load())
	assert.Equal(t, "open", c.BreakerState())
}

func TestSubmit_RejectionsDoNotTripBreaker(t *testing.T) {
	fp := newFakePortal()
	fp.loginBody = `{"Status":"Fail","Message":"Invalid username or password"}`
	srv := httptest.NewServer(fp)
	defer srv.Close()

	c, _ := newTestClient(t, srv, true)
	for i := 0; i < 5; i++ {
		_, err := c.Submit(context.Background(), Credentials{Username: "u", Password: "bad"}, ClockIn)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
}
