package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "salesplan-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "salesplan", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.False(t, cfg.Redis.Enabled)
		assert.Equal(t, 5*time.Minute, cfg.Redis.DirectoryTTL)
		assert.Equal(t, int64(20<<20), cfg.Import.MaxFileSize)
		assert.Equal(t, "auto", cfg.Import.DefaultEncoding)
		assert.Equal(t, 0, cfg.Import.MaxRows)
		assert.False(t, cfg.Import.ArchiveEnabled)
		assert.Equal(t, "exports", cfg.Storage.KeyPrefix)
		assert.Equal(t, "warn", cfg.Log.SQLLevel)
		assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
		assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
	})

	t.Run("loads values from environment variables with SALES prefix", func(t *testing.T) {
		t.Setenv("SALES_APP_NAME", "test-app")
		t.Setenv("SALES_APP_PORT", "9000")
		t.Setenv("SALES_DATABASE_HOST", "testdb.local")
		t.Setenv("SALES_DATABASE_PORT", "5433")
		t.Setenv("SALES_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("SALES_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("SALES_REDIS_ENABLED", "true")
		t.Setenv("SALES_REDIS_DIRECTORY_TTL", "30s")
		t.Setenv("SALES_IMPORT_MAX_ROWS", "5000")
		t.Setenv("SALES_IMPORT_DEFAULT_ENCODING", "utf-8")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, 30*time.Second, cfg.Redis.DirectoryTTL)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
		assert.Equal(t, 5000, cfg.Import.MaxRows)
		assert.Equal(t, "utf-8", cfg.Import.DefaultEncoding)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("SALES_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("SALES_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("SALES_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("archive requires a bucket", func(t *testing.T) {
		t.Setenv("SALES_IMPORT_ARCHIVE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})

	t.Run("archive with bucket passes", func(t *testing.T) {
		t.Setenv("SALES_IMPORT_ARCHIVE_ENABLED", "true")
		t.Setenv("SALES_STORAGE_BUCKET", "exports-bucket")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "exports-bucket", cfg.Storage.Bucket)
	})

	t.Run("rejects negative max rows", func(t *testing.T) {
		t.Setenv("SALES_IMPORT_MAX_ROWS", "-5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "import.max_rows")
	})

	t.Run("rejects sampling ratio above one", func(t *testing.T) {
		t.Setenv("SALES_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("SALES_APP_ENV", "production")
		t.Setenv("SALES_DATABASE_PASSWORD", "secure-password")
		t.Setenv("SALES_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		t.Setenv("SALES_APP_ENV", "production")
		t.Setenv("SALES_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("SALES_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects full SQL in traces", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("SALES_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
