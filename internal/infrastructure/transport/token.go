package transport

import (
	"fmt"
	"net/http"
	"net/url"
)

// CookieTokenSource reads the anti-forgery token from a cookie jar.
type CookieTokenSource struct {
	jar http.CookieJar
	url *url.URL
}

// NewCookieTokenSource reads cookies scoped to endpoint from jar.
func NewCookieTokenSource(jar http.CookieJar, endpoint string) (*CookieTokenSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return &CookieTokenSource{jar: jar, url: u}, nil
}

// Token returns the percent-decoded csrftoken cookie value. A value that
// does not decode is returned as stored. '+' is kept literally.
func (s *CookieTokenSource) Token() (string, bool) {
	for _, cookie := range s.jar.Cookies(s.url) {
		if cookie.Name != CSRFCookie || cookie.Value == "" {
			continue
		}
		if decoded, err := url.PathUnescape(cookie.Value); err == nil {
			return decoded, true
		}
		return cookie.Value, true
	}
	return "", false
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

func (s StaticToken) Token() (string, bool) {
	return string(s), s != ""
}
