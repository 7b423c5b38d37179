package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Request-ID"
	allowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	exposeHeaders = "Content-Disposition, X-Request-ID"
)

// New returns a CORS middleware for the attendance dashboard. An empty list
// allows every origin. Entries of the form "https://*.school.example" match
// any subdomain.
func New(allowedOrigins []string) gin.HandlerFunc {
	m := newMatcher(allowedOrigins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && m.allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && m.allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type matcher struct {
	allowAll bool
	exact    map[string]struct{}
	// scheme + "://" and the domain suffix, including the leading dot
	wildcards [][2]string
}

func newMatcher(origins []string) matcher {
	m := matcher{allowAll: len(origins) == 0, exact: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = normalize(origin)
		if origin == "*" {
			m.allowAll = true
			continue
		}
		if scheme, host, ok := strings.Cut(origin, "://*."); ok {
			m.wildcards = append(m.wildcards, [2]string{scheme + "://", "." + host})
			continue
		}
		m.exact[origin] = struct{}{}
	}
	return m
}

func (m matcher) allows(origin string) bool {
	if m.allowAll {
		return true
	}
	origin = normalize(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcards {
		if strings.HasPrefix(origin, w[0]) && strings.HasSuffix(origin, w[1]) && len(origin) > len(w[0])+len(w[1]) {
			return true
		}
	}
	return false
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
