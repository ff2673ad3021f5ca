package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// DatasetRegistry хранит соответствие (рабочая область, имя набора) -> ID набора данных приемника
type DatasetRegistry interface {
	// Lookup возвращает ID набора данных или пустую строку, если запись отсутствует
	Lookup(groupID, datasetName string) (string, error)

	// Register сохраняет (или обновляет) ID набора данных
	Register(groupID, datasetName, datasetID string) error
}

// MySQLDatasetRegistry реализация DatasetRegistry для MySQL
type MySQLDatasetRegistry struct {
	db *sql.DB
}

// NewMySQLDatasetRegistry создает новый экземпляр MySQLDatasetRegistry
func NewMySQLDatasetRegistry(db *sql.DB) *MySQLDatasetRegistry {
	return &MySQLDatasetRegistry{db: db}
}

// CreateRegistryTable создает таблицу реестра, если она не существует
func (r *MySQLDatasetRegistry) CreateRegistryTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS pbi_dataset_registry (
		group_id VARCHAR(64) NOT NULL,
		dataset_name VARCHAR(100) NOT NULL,
		dataset_id VARCHAR(64) NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (group_id, dataset_name)
	);
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка при создании таблицы pbi_dataset_registry: %w", err)
	}
	return nil
}

// Lookup возвращает ID набора данных из реестра
func (r *MySQLDatasetRegistry) Lookup(groupID, datasetName string) (string, error) {
	var datasetID string
	err := r.db.QueryRow(
		"SELECT dataset_id FROM pbi_dataset_registry WHERE group_id = ? AND dataset_name = ?",
		groupID, datasetName,
	).Scan(&datasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка при чтении реестра наборов данных: %w", err)
	}
	return datasetID, nil
}

// Register сохраняет ID набора данных в реестре
func (r *MySQLDatasetRegistry) Register(groupID, datasetName, datasetID string) error {
	query := `
	INSERT INTO pbi_dataset_registry (group_id, dataset_name, dataset_id)
	VALUES (?, ?, ?)
	ON DUPLICATE KEY UPDATE dataset_id = VALUES(dataset_id)
	`

	if _, err := r.db.Exec(query, groupID, datasetName, datasetID); err != nil {
		return fmt.Errorf("ошибка при записи в реестр наборов данных: %w", err)
	}
	return nil
}

// MemoryDatasetRegistry хранит реестр в памяти (режимы без базы данных и тесты)
type MemoryDatasetRegistry struct {
	entries map[string]string
}

// NewMemoryDatasetRegistry создает пустой реестр в памяти
func NewMemoryDatasetRegistry() *MemoryDatasetRegistry {
	return &MemoryDatasetRegistry{entries: make(map[string]string)}
}

// Имена наборов сравниваются без учета регистра, как в MySQL-реестре с collation по умолчанию
func memoryRegistryKey(groupID, datasetName string) string {
	return groupID + "\x00" + strings.ToLower(datasetName)
}

func (r *MemoryDatasetRegistry) Lookup(groupID, datasetName string) (string, error) {
	return r.entries[memoryRegistryKey(groupID, datasetName)], nil
}

func (r *MemoryDatasetRegistry) Register(groupID, datasetName, datasetID string) error {
	r.entries[memoryRegistryKey(groupID, datasetName)] = datasetID
	return nil
}
