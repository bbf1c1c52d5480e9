package session

import (
	"net/http"
	"net/url"
	"sync"
)

// CookieStore keeps the backend session cookies across daemon restarts.
type CookieStore interface {
	LoadCookies() ([]*http.Cookie, error)
	SaveCookies(cookies []*http.Cookie) error
}

// persistentJar writes the backend's cookies through to a CookieStore
// whenever the server sets new ones (login and refresh).
type persistentJar struct {
	http.CookieJar
	base  *url.URL
	store CookieStore
	onErr func(error)

	mu sync.Mutex
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.CookieJar.SetCookies(u, cookies)
	if u.Host != j.base.Host {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.store.SaveCookies(j.CookieJar.Cookies(j.base)); err != nil && j.onErr != nil {
		j.onErr(err)
	}
}

// restore seeds the jar with previously saved cookies.
func (j *persistentJar) restore() (int, error) {
	cookies, err := j.store.LoadCookies()
	if err != nil || len(cookies) == 0 {
		return 0, err
	}
	for _, c := range cookies {
		if c.Path == "" {
			c.Path = "/"
		}
	}
	j.CookieJar.SetCookies(j.base, cookies)
	return len(cookies), nil
}
