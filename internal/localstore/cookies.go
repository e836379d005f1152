package localstore

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// CookieJar is an http.CookieJar that a wipe can reset
type CookieJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func NewCookieJar() *CookieJar {
	jar, _ := cookiejar.New(nil)
	return &CookieJar{jar: jar}
}

func (c *CookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.jar.SetCookies(u, cookies)
}

func (c *CookieJar) Cookies(u *url.URL) []*http.Cookie {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jar.Cookies(u)
}

func (c *CookieJar) Name() string { return "cookies" }

func (c *CookieJar) Clear(_ context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.jar = jar
	c.mu.Unlock()
	return nil
}
