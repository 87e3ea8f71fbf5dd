package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "_csrf_token"
	csrfFormField  = "_csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfContextKey = "CSRFToken"
)

// CSRFConfig configures CSRF protection for the HTML pages.
type CSRFConfig struct {
	Secret string
	// Secure marks the token cookie HTTPS-only. CSRF sets it in release mode.
	Secure bool
}

// CSRF protects form posts with a signed double-submit token.
//
// Token format: hex(nonce) + "." + base64url(HMAC-SHA256(nonce, secret)).
//
// Safe methods get a token cookie (readable by htmx, SameSite=Strict) and
// the token in the gin context for templates. Unsafe methods must echo the
// cookie in the "_csrf_token" form field or the X-CSRF-Token header.
// Rejected browser posts render errors/403.html; other clients get JSON.
func CSRF(secret string) gin.HandlerFunc {
	return CSRFWithConfig(CSRFConfig{Secret: secret, Secure: gin.Mode() == gin.ReleaseMode})
}

// CSRFWithConfig is CSRF with explicit settings.
func CSRFWithConfig(cfg CSRFConfig) gin.HandlerFunc {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return func(c *gin.Context) {
			abortInternal(c)
		}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			token, err := c.Cookie(csrfCookieName)
			if err != nil || !validToken(token, secret) {
				token, err = generateToken(secret)
				if err != nil {
					abortInternal(c)
					return
				}
				setCSRFCookie(c, token, cfg.Secure)
			}
			c.Set(csrfContextKey, token)
			c.Next()

		default:
			cookieToken, _ := c.Cookie(csrfCookieName)
			requestToken := c.PostForm(csrfFormField)
			if requestToken == "" {
				requestToken = c.GetHeader(csrfHeaderName)
			}

			switch {
			case cookieToken == "" || requestToken == "":
				rejectCSRF(c, "CSRF token missing")
			case !validToken(cookieToken, secret) || !validToken(requestToken, secret),
				subtle.ConstantTimeCompare([]byte(cookieToken), []byte(requestToken)) != 1:
				rejectCSRF(c, "CSRF token invalid")
			default:
				c.Set(csrfContextKey, cookieToken)
				c.Next()
			}
		}
	}
}

// GetCSRFToken returns the token stored by CSRF, or "".
func GetCSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

func rejectCSRF(c *gin.Context, msg string) {
	c.Abort()
	if acceptsHTML(c) && c.GetHeader("HX-Request") != "true" {
		defer func() {
			if r := recover(); r != nil {
				c.Data(http.StatusForbidden, "text/plain; charset=utf-8", []byte("403 Forbidden"))
			}
		}()
		c.HTML(http.StatusForbidden, "errors/403.html", gin.H{"Title": "Forbidden", "Message": "Your form expired. Reload the page and try again."})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": msg, "data": nil})
}

func generateToken(secret string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	nonceHex := hex.EncodeToString(nonce)
	return nonceHex + "." + signNonce(nonceHex, secret), nil
}

func signNonce(nonce, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// validToken checks the token's shape and HMAC signature.
func validToken(token, secret string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || sig == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(signNonce(nonce, secret))) == 1
}

func setCSRFCookie(c *gin.Context, token string, secure bool) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
