package requestid

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware())

	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return seen, w
}

func TestMiddlewareMintsAndEchoesID(t *testing.T) {
	seen, w := serve(t, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(Header))
}

func TestMiddlewareReusesCallerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(Header, "frame-42")

	seen, w := serve(t, req)

	assert.Equal(t, "frame-42", seen)
	assert.Equal(t, "frame-42", w.Header().Get(Header))
}
