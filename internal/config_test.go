package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "secret")

	config, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	req.NoError(err)

	req.Equal("localhost:8080", config.Address())
	req.Equal([]string{"http://localhost:8080", "http://localhost:8081"}, config.Origins())
	req.Equal("* * * * *", config.RetentionSweepCron)

	engine := config.Engine()
	req.False(engine.SingleConnectionPerUser)
	req.Equal(24*time.Hour, engine.RetentionWindow)
	req.Equal(4096, engine.MaxPayloadSize)
	req.Equal(5, engine.MaxSessionsPerAgent)
}

func TestLoad_Env_File(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MAX_PAYLOAD_SIZE", "128")
	dotenv := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(dotenv, []byte("LOG_LEVEL=INFO\nMAX_PAYLOAD_SIZE=999\nSINGLE_CONNECTION_PER_USER=true\n"), 0o600))
	// godotenv sets variables for the whole process
	t.Cleanup(func() {
		_ = os.Unsetenv("LOG_LEVEL")
		_ = os.Unsetenv("SINGLE_CONNECTION_PER_USER")
	})

	config, err := Load(dotenv)
	req.NoError(err)

	// The environment wins over the file
	req.Equal(128, config.MaxPayloadSize)
	req.Equal("INFO", config.LogLevel)
	req.True(config.SingleConnectionPerUser)
}

func TestLoad_Missing_Required(t *testing.T) {
	req := require.New(t)
	t.Setenv("LOG_LEVEL", "")
	_ = os.Unsetenv("LOG_LEVEL")
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "")
	_ = os.Unsetenv("JWT_SECRET")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	req.Error(err)
}
