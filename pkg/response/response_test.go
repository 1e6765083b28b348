package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/tracking-backend-go/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&service.ValidationError{Field: "name", Message: "too short"}, http.StatusBadRequest},
		{fmt.Errorf("geofence x: %w", service.ErrNotFound), http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrConflict, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		FromError(c, tt.err)

		assert.Equal(t, tt.code, rec.Code)
		var body Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.code, body.Code)
		if tt.code == http.StatusInternalServerError {
			assert.NotContains(t, body.Message, "disk on fire")
		}
	}
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Created(c, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"code":0,"message":"created","data":{"id":"1"}}`, rec.Body.String())
}
