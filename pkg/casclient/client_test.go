package casclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/cas-sso/pkg/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestClient(t *testing.T, v TicketValidator, now func() time.Time) *Client {
	t.Helper()
	cl, err := New(Options{
		Name:       "mail",
		ServiceURL: "http://localhost:8080/demo/mail/",
		CASURL:     "http://localhost:8080",
		Validator:  v,
		Secret:     []byte("test-secret"),
		SessionTTL: time.Hour,
		Now:        now,
	})
	require.NoError(t, err)
	return cl
}

func newRouter(cl *Client) *gin.Engine {
	r := gin.New()
	r.GET("/demo/mail/", cl.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, "hello "+Identity(c))
	})
	return r
}

func acceptAll(_ context.Context, ticket, service string) (string, error) {
	if ticket == "ST-good" {
		return "demo", nil
	}
	return "", &Error{Code: response.CodeUnknownTicket, Message: "票据不存在"}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Name: "a", ServiceURL: "http://a/", CASURL: "http://cas"})
	assert.Error(t, err, "缺少密钥")
}

func TestLoginAndLogoutURL(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	assert.Equal(t, "http://localhost:8080/cas/login?service=http%3A%2F%2Flocalhost%3A8080%2Fdemo%2Fmail%2F", cl.LoginURL())
	assert.Equal(t, "http://localhost:8080/cas/logout?service=http%3A%2F%2Flocalhost%3A8080%2Fdemo%2Fmail%2F", cl.LogoutURL())
}

func TestMiddleware_RedirectsWithoutSession(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	r := newRouter(cl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cl.LoginURL(), w.Header().Get("Location"))
}

func TestMiddleware_InvalidTicket(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	r := newRouter(cl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-bad", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestMiddleware_TicketThenSession(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	r := newRouter(cl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-good&tab=inbox", nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/demo/mail/?tab=inbox", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "mail_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cl.HasSession("demo"))

	req := httptest.NewRequest(http.MethodGet, "/demo/mail/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello demo", w.Body.String())
}

func TestOnLogout_RevokesSessions(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	r := newRouter(cl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-good", nil))
	cookie := w.Result().Cookies()[0]

	assert.Equal(t, 1, cl.OnLogout(context.Background(), &LogoutEvent{Identity: "demo", TGTID: "TGT-x"}))
	assert.False(t, cl.HasSession("demo"))
	assert.Equal(t, 0, cl.OnLogout(context.Background(), &LogoutEvent{Identity: "demo"}))

	req := httptest.NewRequest(http.MethodGet, "/demo/mail/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code, "注销后的 cookie 不再有效")
}

func TestSession_Expires(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cl := newTestClient(t, ValidatorFunc(acceptAll), clock)
	r := newRouter(cl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-good", nil))
	cookie := w.Result().Cookies()[0]

	now = now.Add(2 * time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/demo/mail/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestSession_ForeignSecretRejected(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	other, err := New(Options{
		Name:       "mail",
		ServiceURL: "http://localhost:8080/demo/mail/",
		CASURL:     "http://localhost:8080",
		Validator:  ValidatorFunc(acceptAll),
		Secret:     []byte("other"),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	newRouter(other).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-good", nil))
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/demo/mail/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	newRouter(cl).ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestClearSession(t *testing.T) {
	cl := newTestClient(t, ValidatorFunc(acceptAll), nil)
	r := newRouter(cl)
	r.GET("/demo/mail/logout", func(c *gin.Context) {
		cl.ClearSession(c)
		c.Redirect(http.StatusFound, cl.LogoutURL())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/demo/mail/?ticket=ST-good", nil))
	cookie := w.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/demo/mail/logout", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, cl.LogoutURL(), w.Header().Get("Location"))
	assert.False(t, cl.HasSession("demo"))
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, -1, w.Result().Cookies()[0].MaxAge)
}

func TestHTTPValidator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cas/serviceValidate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("ticket") == "ST-good" {
			_ = json.NewEncoder(w).Encode(response.Response{
				Code: response.CodeSuccess,
				Data: map[string]string{"user": "demo", "service": r.URL.Query().Get("service")},
			})
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(response.Response{
			Code: response.CodeTicketConsumed,
			Msg:  response.Message(response.CodeTicketConsumed),
		})
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL+"/", srv.Client())
	user, err := v.Validate(context.Background(), "ST-good", "http://a/")
	require.NoError(t, err)
	assert.Equal(t, "demo", user)

	_, err = v.Validate(context.Background(), "ST-used", "http://a/")
	var casErr *Error
	require.True(t, errors.As(err, &casErr))
	assert.Equal(t, response.CodeTicketConsumed, casErr.Code)
}

func TestHTTPValidator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewHTTPValidator(addr, nil).Validate(context.Background(), "ST-x", (&url.URL{Scheme: "http", Host: "a"}).String())
	assert.Error(t, err)
}

// 广播消息体可以直接解码为 LogoutEvent
func TestLogoutEvent_DecodeBroadcast(t *testing.T) {
	body := `{"identity":"demo","tgt_id":"TGT-abc","services":["http://localhost:8080/demo/mail/"],"at":"2024-05-01T09:00:00Z"}`

	var event LogoutEvent
	require.NoError(t, json.Unmarshal([]byte(body), &event))
	assert.Equal(t, "demo", event.Identity)
	assert.Equal(t, "TGT-abc", event.TGTID)
	assert.Equal(t, []string{"http://localhost:8080/demo/mail/"}, event.Services)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), event.At)
}
