package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	t.Setenv("AFFECTD_TEST_STR", "  value ")
	assert.Equal(t, "value", String("AFFECTD_TEST_STR", "def"))

	t.Setenv("AFFECTD_TEST_STR", "   ")
	assert.Equal(t, "def", String("AFFECTD_TEST_STR", "def"))
}

func TestNumbers(t *testing.T) {
	t.Setenv("AFFECTD_TEST_INT", "42")
	t.Setenv("AFFECTD_TEST_FLOAT", "0.25")
	t.Setenv("AFFECTD_TEST_DUR", "1500ms")
	t.Setenv("AFFECTD_TEST_BAD", "nope")

	assert.Equal(t, 42, Int("AFFECTD_TEST_INT", 1))
	assert.Equal(t, 1, Int("AFFECTD_TEST_BAD", 1))
	assert.Equal(t, 0.25, Float("AFFECTD_TEST_FLOAT", 1))
	assert.Equal(t, 2.0, Float("AFFECTD_TEST_BAD", 2))
	assert.Equal(t, 1500*time.Millisecond, Duration("AFFECTD_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, Duration("AFFECTD_TEST_BAD", time.Second))
}

func TestList(t *testing.T) {
	t.Setenv("AFFECTD_TEST_LIST", "a, b,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, List("AFFECTD_TEST_LIST"))

	t.Setenv("AFFECTD_TEST_LIST", "")
	assert.Empty(t, List("AFFECTD_TEST_LIST"))
}

func TestServerDefaults(t *testing.T) {
	t.Setenv("AFFECTD_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	assert.Equal(t, DefaultPort, Port())
	assert.Equal(t, DefaultProvider, Provider())
	assert.Equal(t, "*", AllowedOrigins())

	t.Setenv("PORT", "9000")
	assert.Equal(t, "9000", Port())
	t.Setenv("AFFECTD_PORT", "9100")
	assert.Equal(t, "9100", Port())

	t.Setenv("LLM_PROVIDER", "OpenAI")
	assert.Equal(t, "openai", Provider())

	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://app.example.com")
	assert.Equal(t, "http://localhost:3000,https://app.example.com", AllowedOrigins())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AFFECTD_TEST_DOTENV=from-file\nAFFECTD_TEST_KEEP=from-file\n"), 0o600))

	t.Setenv("AFFECTD_TEST_DOTENV", "")
	os.Unsetenv("AFFECTD_TEST_DOTENV")
	t.Setenv("AFFECTD_TEST_KEEP", "from-env")

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "from-file", os.Getenv("AFFECTD_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("AFFECTD_TEST_KEEP"))
}
