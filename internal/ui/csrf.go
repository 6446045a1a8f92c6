package ui

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

const (
	csrfCookieName = "duck_explore_csrf"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfTokenBytes = 32
)

type csrfContextKey struct{}

// EnsureCSRFToken issues a per-browser token cookie scoped to the UI and
// stores the token on the request context for forms to embed.
func (h *Handler) EnsureCSRFToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := readCSRFCookie(r)
		if token == "" {
			var err error
			token, err = newCSRFToken()
			if err != nil {
				h.logger.LogAttrs(r.Context(), slog.LevelError, "csrf token", slog.String("error", err.Error()))
				renderHTML(w, http.StatusInternalServerError, errorPage("Internal Error", "Could not start a UI session."))
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     csrfCookieName,
				Value:    token,
				Path:     "/ui",
				HttpOnly: true,
				Secure:   h.secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), csrfContextKey{}, token)))
	})
}

// RequireCSRF rejects state-changing requests whose submitted token does
// not match the cookie. The token may come from the form or the header.
func (h *Handler) RequireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if reason := checkCSRF(r); reason != "" {
			h.logger.LogAttrs(r.Context(), slog.LevelWarn, "csrf rejected",
				slog.String("path", r.URL.Path),
				slog.String("reason", reason),
			)
			renderHTML(w, http.StatusForbidden, errorPage("Request Rejected", "The form expired. Reload the explore page and submit again."))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkCSRF returns why r fails validation, or "" when it passes.
func checkCSRF(r *http.Request) string {
	cookieToken := readCSRFCookie(r)
	if cookieToken == "" {
		return "missing cookie"
	}
	submitted := strings.TrimSpace(r.Header.Get(csrfHeader))
	if submitted == "" {
		_ = r.ParseForm()
		submitted = strings.TrimSpace(r.PostForm.Get(csrfFormField))
	}
	if submitted == "" {
		return "missing token"
	}
	if subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) != 1 {
		return "token mismatch"
	}
	return ""
}

func csrfToken(r *http.Request) string {
	if token, ok := r.Context().Value(csrfContextKey{}).(string); ok && token != "" {
		return token
	}
	return readCSRFCookie(r)
}

func csrfField(r *http.Request) gomponents.Node {
	return html.Input(html.Type("hidden"), html.Name(csrfFormField), html.Value(csrfToken(r)))
}

func readCSRFCookie(r *http.Request) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func newCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
