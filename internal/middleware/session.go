package middleware // reusable HTTP middleware for the reservation API

import (
    "net/http"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// HolderSession returns an Echo middleware that resolves the holder id
// owning the reservations touched by a request.  When a Bearer session
// token is present it must be a valid HS256 JWT and the subject claim
// becomes the holder id; otherwise an anonymous cart session id may be
// supplied via the X-Cart-Session header.  Requests carrying neither are
// rejected: every hold needs an owner.
func HolderSession(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if strings.HasPrefix(auth, "Bearer ") {
                raw := strings.TrimPrefix(auth, "Bearer ")
                tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                    if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                        return nil, echo.ErrUnauthorized
                    }
                    return []byte(secret), nil
                })
                if err != nil || !tok.Valid {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session token"})
                }
                claims, ok := tok.Claims.(jwt.MapClaims)
                if !ok {
                    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
                }
                if sub, ok := claims["sub"].(string); ok && sub != "" {
                    c.Set("holder_id", sub)
                    return next(c)
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing subject claim"})
            }
            if sid := c.Request().Header.Get("X-Cart-Session"); sid != "" {
                c.Set("holder_id", "cart:"+sid)
                return next(c)
            }
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session"})
        }
    }
}

// HolderID extracts the holder id stored by HolderSession, or "" when
// the middleware did not run.
func HolderID(c echo.Context) string {
    if v, ok := c.Get("holder_id").(string); ok {
        return v
    }
    return ""
}
