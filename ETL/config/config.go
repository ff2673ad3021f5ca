package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/transform"
)

// ETLConfig содержит конфигурацию процесса обновления набора данных
type ETLConfig struct {
	// Учетные данные и рабочая область Power BI
	PowerBI PowerBIConfig `json:"powerbi"`

	// Конфигурация для подключения к OLAP БД (журнал запусков и реестр наборов данных)
	OLAPConfig DatabaseConfig `json:"olap_config"`

	// Корень канонических данных: <DataDir>/canon/<набор>/<день>/records.jsonl
	DataDir string `json:"data_dir"`

	// Директория архивов таблиц; пустая строка отключает архивирование
	SnapshotDir string `json:"snapshot_dir"`

	// Часовой пояс для календарных дней (IANA)
	ReferenceTimeZone string `json:"reference_time_zone"`

	// Адрес HTTP API мониторинга
	MonitorAddr string `json:"monitor_addr"`

	// Интервал запуска по расписанию
	RunInterval time.Duration `json:"run_interval"`

	// Максимальное количество строк в одном запросе вставки
	MaxBatchSize int `json:"max_batch_size"`

	// Квоты приемника
	SinkLimits load.QuotaLimits `json:"sink_limits"`

	// Повторы вызовов приемника
	Retry RetryConfig `json:"retry"`

	// Тайм-аут одного HTTP запроса к Power BI, включая получение токена
	HTTPTimeout time.Duration `json:"http_timeout"`

	// Включение/отключение логирования
	EnableDetailedLogging bool `json:"enable_detailed_logging"`
}

// PowerBIConfig содержит параметры подключения к Power BI
type PowerBIConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	GroupID      string `json:"group_id"`
	DatasetName  string `json:"dataset_name"`
}

// RetryConfig содержит параметры повторов
type RetryConfig struct {
	MaxRetries int `json:"max_retries"`
}

// DatabaseConfig содержит настройки подключения к базе данных
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	DBName   string `json:"dbname"`
}

// Значения конфигурации по умолчанию
var (
	DefaultOLAPConfig = DatabaseConfig{
		Driver: "mysql",
		Host:   "localhost",
		Port:   3306,
		User:   "root",
		DBName: "workflow_analytics",
	}

	DefaultETLConfig = ETLConfig{
		PowerBI:               PowerBIConfig{DatasetName: "Workflow Analytics"},
		OLAPConfig:            DefaultOLAPConfig,
		DataDir:               "data",
		ReferenceTimeZone:     transform.DefaultReferenceTimeZone,
		MonitorAddr:           ":8090",
		RunInterval:           1 * time.Hour,
		MaxBatchSize:          load.MaxRowsPerRequest,
		SinkLimits:            load.DefaultQuotaLimits(),
		Retry:                 RetryConfig{MaxRetries: load.DefaultMaxRetries},
		HTTPTimeout:           60 * time.Second,
		EnableDetailedLogging: true,
	}
)

// GetConfig возвращает конфигурацию по умолчанию
func GetConfig() ETLConfig {
	return DefaultETLConfig
}

// LoadConfig читает envFile (если он существует) и переопределяет значения по умолчанию
// переменными окружения. Уже заданные переменные окружения имеют приоритет над файлом.
func LoadConfig(envFile string) (ETLConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ETLConfig{}, fmt.Errorf("ошибка чтения файла окружения %s: %w", envFile, err)
		}
	}

	config := GetConfig()
	env := envReader{}

	// 1. Power BI
	env.str("PBI_TENANT_ID", &config.PowerBI.TenantID)
	env.str("PBI_CLIENT_ID", &config.PowerBI.ClientID)
	env.str("PBI_CLIENT_SECRET", &config.PowerBI.ClientSecret)
	env.str("PBI_GROUP_ID", &config.PowerBI.GroupID)
	env.str("PBI_DATASET_NAME", &config.PowerBI.DatasetName)

	// 2. Процесс обновления
	env.str("ETL_DATA_DIR", &config.DataDir)
	env.str("ETL_SNAPSHOT_DIR", &config.SnapshotDir)
	env.str("ETL_TIMEZONE", &config.ReferenceTimeZone)
	env.str("ETL_MONITOR_ADDR", &config.MonitorAddr)
	env.duration("ETL_RUN_INTERVAL", &config.RunInterval)
	env.duration("ETL_HTTP_TIMEOUT", &config.HTTPTimeout)
	env.integer("ETL_MAX_BATCH_SIZE", &config.MaxBatchSize)
	env.boolean("ETL_DETAILED_LOGGING", &config.EnableDetailedLogging)

	// 3. OLAP база данных
	env.str("OLAP_HOST", &config.OLAPConfig.Host)
	env.integer("OLAP_PORT", &config.OLAPConfig.Port)
	env.str("OLAP_USER", &config.OLAPConfig.User)
	env.str("OLAP_PASSWORD", &config.OLAPConfig.Password)
	env.str("OLAP_DB", &config.OLAPConfig.DBName)

	// 4. Квоты и повторы
	env.integer("PBI_MAX_ROWS_PER_HOUR", &config.SinkLimits.MaxRowsPerHour)
	env.integer("PBI_MAX_REQUESTS_PER_MINUTE", &config.SinkLimits.MaxRequestsPerMinute)
	env.integer("PBI_MAX_REQUESTS_PER_HOUR", &config.SinkLimits.MaxRequestsPerHour)
	env.integer("PBI_MAX_RETRIES", &config.Retry.MaxRetries)

	if env.err != nil {
		return ETLConfig{}, env.err
	}
	return config, nil
}

// Validate проверяет конфигурацию; requireCredentials требует учетные данные Power BI
// для режимов, которые обращаются к приемнику
func (c ETLConfig) Validate(requireCredentials bool) error {
	if err := c.SinkLimits.Validate(); err != nil {
		return fmt.Errorf("некорректные квоты приемника: %w", err)
	}
	if c.MaxBatchSize < 1 || c.MaxBatchSize > load.MaxRowsPerRequest {
		return fmt.Errorf("размер пакета должен быть от 1 до %d, получено %d", load.MaxRowsPerRequest, c.MaxBatchSize)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("число повторов не может быть отрицательным: %d", c.Retry.MaxRetries)
	}
	if c.RunInterval <= 0 {
		return fmt.Errorf("интервал запуска должен быть положительным: %v", c.RunInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("тайм-аут HTTP запроса должен быть положительным: %v", c.HTTPTimeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.PowerBI.DatasetName == "" {
		return errors.New("не задано имя набора данных (PBI_DATASET_NAME)")
	}

	if requireCredentials {
		missing := []string{}
		if c.PowerBI.TenantID == "" {
			missing = append(missing, "PBI_TENANT_ID")
		}
		if c.PowerBI.ClientID == "" {
			missing = append(missing, "PBI_CLIENT_ID")
		}
		if c.PowerBI.ClientSecret == "" {
			missing = append(missing, "PBI_CLIENT_SECRET")
		}
		if c.PowerBI.GroupID == "" {
			missing = append(missing, "PBI_GROUP_ID")
		}
		if len(missing) > 0 {
			return fmt.Errorf("не заданы учетные данные Power BI: %v", missing)
		}
	}

	return nil
}

// Location возвращает часовой пояс для календарных дней
func (c ETLConfig) Location() (*time.Location, error) {
	return transform.LoadReferenceLocation(c.ReferenceTimeZone)
}

// envReader переопределяет поля значениями переменных окружения и запоминает первую ошибку разбора
type envReader struct {
	err error
}

func (r *envReader) str(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func (r *envReader) integer(key string, target *int) {
	value, ok := os.LookupEnv(key)
	if !ok || r.err != nil {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.err = fmt.Errorf("некорректное значение %s=%q: %w", key, value, err)
		return
	}
	*target = parsed
}

func (r *envReader) duration(key string, target *time.Duration) {
	value, ok := os.LookupEnv(key)
	if !ok || r.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.err = fmt.Errorf("некорректное значение %s=%q: %w", key, value, err)
		return
	}
	*target = parsed
}

func (r *envReader) boolean(key string, target *bool) {
	value, ok := os.LookupEnv(key)
	if !ok || r.err != nil {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.err = fmt.Errorf("некорректное значение %s=%q: %w", key, value, err)
		return
	}
	*target = parsed
}
