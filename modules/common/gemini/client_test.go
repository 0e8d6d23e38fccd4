package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genstudio-server/modules/common/apperr"
	"genstudio-server/modules/common/config"
)

func TestIs429Error(t *testing.T) {
	assert.True(t, is429Error(errors.New("Error 429, Message: Resource has been exhausted")))
	assert.True(t, is429Error(errors.New("quota exceeded for project")))
	assert.False(t, is429Error(errors.New("Error 400, Message: invalid argument")))
	assert.False(t, is429Error(nil))
}

func TestNewTextClientRequiresKeys(t *testing.T) {
	_, err := NewTextClient(&config.Config{}, zerolog.Nop())
	var cfgErr *apperr.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "GEMINI_API_KEYS", cfgErr.Key)
}

func TestGenerateReturnsCandidateText(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.5-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewTextClient(&config.Config{GeminiAPIKeys: []string{"k1"}, GeminiModel: "gemini-2.5-flash"}, zerolog.Nop())
	require.NoError(t, err)
	c.baseURL = srv.URL + "/"
	c.sleep = func(context.Context, time.Duration) error { return nil }

	text, err := c.Generate(context.Background(), "", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)
	assert.Equal(t, int32(1), calls.Load())
}
