package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/generate", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "status", "SOLVED")
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generate", nil))

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, true, meta["cache_hit"])
	assert.Equal(t, "SOLVED", meta["status"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))

	SetCacheHit(c, false)
	assert.Equal(t, map[string]interface{}{"cache_hit": false}, ExtractMeta(c))
}
