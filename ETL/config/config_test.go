package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
)

func TestGetConfigDefaultsAreValid(t *testing.T) {
	config := GetConfig()

	assert.Equal(t, load.MaxRowsPerRequest, config.MaxBatchSize)
	assert.Equal(t, load.DefaultQuotaLimits(), config.SinkLimits)
	assert.NoError(t, config.Validate(false))
	assert.ErrorContains(t, config.Validate(true), "PBI_TENANT_ID")
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PBI_TENANT_ID=tenant\n"+
			"PBI_CLIENT_ID=client\n"+
			"PBI_CLIENT_SECRET=secret\n"+
			"PBI_GROUP_ID=group\n"+
			"ETL_RUN_INTERVAL=15m\n"+
			"ETL_HTTP_TIMEOUT=90s\n"+
			"ETL_TIMEZONE=Europe/Moscow\n"+
			"OLAP_PORT=3307\n"+
			"PBI_MAX_REQUESTS_PER_MINUTE=60\n"), 0o644))

	// godotenv не перезаписывает заданные переменные; t.Setenv восстановит их после теста
	for _, key := range []string{"PBI_TENANT_ID", "PBI_CLIENT_ID", "PBI_CLIENT_SECRET", "PBI_GROUP_ID",
		"ETL_RUN_INTERVAL", "ETL_HTTP_TIMEOUT", "ETL_TIMEZONE", "OLAP_PORT", "PBI_MAX_REQUESTS_PER_MINUTE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("ETL_MAX_BATCH_SIZE", "5000")

	config, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "tenant", config.PowerBI.TenantID)
	assert.Equal(t, "group", config.PowerBI.GroupID)
	assert.Equal(t, 15*time.Minute, config.RunInterval)
	assert.Equal(t, 90*time.Second, config.HTTPTimeout)
	assert.Equal(t, 3307, config.OLAPConfig.Port)
	assert.Equal(t, 60, config.SinkLimits.MaxRequestsPerMinute)
	assert.Equal(t, 5000, config.MaxBatchSize)
	assert.NoError(t, config.Validate(true))

	location, err := config.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", location.String())
}

func TestLoadConfigWithoutEnvFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadConfigRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("PBI_MAX_ROWS_PER_HOUR", "many")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "PBI_MAX_ROWS_PER_HOUR")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ETLConfig)
		wantErr string
	}{
		{"batch too large", func(c *ETLConfig) { c.MaxBatchSize = load.MaxRowsPerRequest + 1 }, "размер пакета"},
		{"zero batch", func(c *ETLConfig) { c.MaxBatchSize = 0 }, "размер пакета"},
		{"zero quota", func(c *ETLConfig) { c.SinkLimits.MaxRequestsPerHour = 0 }, "квоты"},
		{"zero http timeout", func(c *ETLConfig) { c.HTTPTimeout = 0 }, "тайм-аут"},
		{"negative retries", func(c *ETLConfig) { c.Retry.MaxRetries = -1 }, "повторов"},
		{"unknown zone", func(c *ETLConfig) { c.ReferenceTimeZone = "Mars/Olympus" }, "часового пояса"},
		{"no dataset name", func(c *ETLConfig) { c.PowerBI.DatasetName = "" }, "PBI_DATASET_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetConfig()
			tt.mutate(&config)
			assert.ErrorContains(t, config.Validate(false), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: 3306, User: "etl", Password: "pw", DBName: "analytics"}.DSN()

	assert.Contains(t, dsn, "etl:pw@tcp(db:3306)/analytics")
	assert.Contains(t, dsn, "parseTime=true")
}
