package config

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// DSN возвращает строку подключения драйвера MySQL
func (c DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.DBName
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ConnectOLAP устанавливает подключение к OLAP базе данных (журнал запусков и реестр наборов данных)
func ConnectOLAP(config DatabaseConfig, logger *utils.ETLLogger) (*sql.DB, error) {
	db, err := sql.Open(config.Driver, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к OLAP базе данных: %w", err)
	}

	// Настройка параметров подключения
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось установить соединение с OLAP базой данных: %w", err)
	}

	logger.Info("Успешное подключение к OLAP базе данных %s", config.DBName)
	return db, nil
}

// CloseOLAP закрывает подключение к базе данных
func CloseOLAP(db *sql.DB, logger *utils.ETLLogger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("Ошибка при закрытии соединения с OLAP базой данных: %v", err)
		return
	}
	logger.Info("Соединение с OLAP базой данных закрыто")
}
