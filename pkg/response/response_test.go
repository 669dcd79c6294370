package response

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitasfix/civitasfix-api/internal/models"
	appErrors "github.com/civitasfix/civitasfix-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}

func TestJSONWritesSuccessEnvelope(t *testing.T) {
	c, rec := newContext()
	JSON(c, http.StatusOK, []string{"a"}, models.NewPagination(1, 10, 21), map[string]interface{}{"cache_hit": true})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["totalPages"])
	assert.Equal(t, true, body["meta"].(map[string]interface{})["cache_hit"])
}

func TestErrorUsesStatusAndMessage(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrForbidden, "students cannot change report status"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "students cannot change report status", body["message"])
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]interface{})["code"])
}

func TestErrorHidesUntypedErrors(t *testing.T) {
	c, rec := newContext()
	Error(c, sql.ErrConnDone)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection")
}
