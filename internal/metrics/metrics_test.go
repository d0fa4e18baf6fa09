package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTP_CountsByRouteAndFallsBackToRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(HTTP())
	r.GET("/items/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200"))
	baseMissing := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, path := range []string{"/items/1", "/items/2", "/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, baseRoute+2, testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, baseMissing+1, testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpInflight))
}
