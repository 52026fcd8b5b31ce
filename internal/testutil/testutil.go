// Package testutil holds helpers shared by HTTP handler tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// LoopbackAddr is the RemoteAddr given to every request. Debug routes only
// answer loopback and tailnet callers.
const LoopbackAddr = "127.0.0.1:41234"

// Serve sends a request without a body to h and returns the recorded
// response.
func Serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	return serve(h, httptest.NewRequest(method, target, nil))
}

// PostForm sends form to h as a urlencoded POST.
func PostForm(h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(h, req)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = LoopbackAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// DecodeJSON decodes the response body into a T, failing the test on error.
func DecodeJSON[T any](t testing.TB, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	body, _ := io.ReadAll(w.Result().Body)
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("failed to decode %T from %q: %v", v, body, err)
	}
	return v
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Errorf("status code = %d, want %d (body %q)", w.Code, want, w.Body.String())
	}
}
