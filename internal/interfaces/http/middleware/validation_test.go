package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rpgsheets/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError(t *testing.T) {
	type shareBody struct {
		DurationHours int    `json:"duration_hours" binding:"required,min=1,max=720"`
		Note          string `json:"note" binding:"omitempty,oneof=a b"`
	}
	SetupValidator()

	router := gin.New()
	router.POST("/share", func(c *gin.Context) {
		var body shareBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	send := func(body string) (*httptest.ResponseRecorder, dto.Response) {
		req := httptest.NewRequest(http.MethodPost, "/share", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var resp dto.Response
		if w.Code != http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w, resp
	}

	t.Run("field errors", func(t *testing.T) {
		w, resp := send(`{"duration_hours": 1000, "note": "c"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "duration_hours", resp.Error.Details[0].Field)
		assert.Equal(t, "Must be at most 720", resp.Error.Details[0].Message)
		assert.Equal(t, "Must be one of: a b", resp.Error.Details[1].Message)
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := send(`{"duration_hours":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Malformed request body", resp.Error.Message)
		assert.Empty(t, resp.Error.Details)
	})

	t.Run("valid", func(t *testing.T) {
		w, _ := send(`{"duration_hours": 24}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
