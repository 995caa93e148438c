package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initData(user string, authDate int64) string {
	v := url.Values{}
	v.Set("user", user)
	v.Set("auth_date", strconv.FormatInt(authDate, 10))
	return v.Encode()
}

func TestExtractTelegramData(t *testing.T) {
	data, err := ExtractTelegramData(initData(`{"id":42,"first_name":"Ann","username":"ann"}`, 1700000000))
	require.NoError(t, err)

	assert.Equal(t, int64(42), data.ID)
	assert.Equal(t, "Ann", data.FirstName)
	assert.Equal(t, "ann", data.Username)
	assert.Equal(t, int64(1700000000), data.AuthDate.Unix())

	_, err = ExtractTelegramData("user=%7B&auth_date=1")
	assert.Error(t, err)

	_, err = ExtractTelegramData("auth_date=abc")
	assert.Error(t, err)
}

func TestTelegramAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	valid := "Telegram " + initData(`{"id":42,"first_name":"Ann"}`, 1700000000)

	tests := []struct {
		name     string
		debug    bool
		header   string
		wantCode int
	}{
		{name: "missing header", debug: true, wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", debug: true, header: "Bearer abc", wantCode: http.StatusUnauthorized},
		{name: "malformed data", debug: true, header: "Telegram auth_date=x", wantCode: http.StatusUnauthorized},
		{name: "unsigned data outside debug mode", header: valid, wantCode: http.StatusUnauthorized},
		{name: "debug mode", debug: true, header: valid, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/", NewTelegramAuth("123:token", tt.debug).TelegramAuthMiddleware(), func(c *gin.Context) {
				user, ok := UserFromContext(c)
				require.True(t, ok)
				c.JSON(http.StatusOK, gin.H{"id": user.ID})
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
