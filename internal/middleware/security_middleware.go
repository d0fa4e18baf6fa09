package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets the browser hardening headers on every response.
// connect-src allows ws/wss for the live conversation routes.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Content-Security-Policy",
			"default-src 'self'; "+
				"connect-src 'self' ws: wss:; "+
				"img-src 'self' data: https:; "+
				"frame-ancestors 'none';",
		)
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")
		c.Next()
	}
}

// HSTS is only sent in production, where TLS terminates in front of us.
func HSTS(isProduction bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isProduction {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
