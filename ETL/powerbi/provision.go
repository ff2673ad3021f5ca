package powerbi

import (
	"context"
	"fmt"
	"strings"

	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
)

// DatasetAPI - вызовы управления схемой набора данных
type DatasetAPI interface {
	GroupID() string
	ListDatasets(ctx context.Context) ([]load.DatasetInfo, error)
	CreateDataset(ctx context.Context, spec *models.DatasetSpec) (load.DatasetInfo, error)
	ListTables(ctx context.Context, datasetID string) ([]load.TableInfo, error)
	PutTable(ctx context.Context, datasetID string, table models.TableSpec) error
}

// SchemaDiffResult - расхождение желаемой схемы и существующего набора данных
type SchemaDiffResult struct {
	TablesToUpsert []string
}

// HasChanges сообщает, нужно ли изменять схему
func (d SchemaDiffResult) HasChanges() bool {
	return len(d.TablesToUpsert) > 0
}

// SchemaDiff возвращает таблицы спецификации, которых нет в наборе данных (без учета регистра).
// Колонки существующих таблиц не сравниваются.
func SchemaDiff(spec *models.DatasetSpec, existing []load.TableInfo) SchemaDiffResult {
	present := make(map[string]bool, len(existing))
	for _, table := range existing {
		present[strings.ToLower(table.Name)] = true
	}

	var diff SchemaDiffResult
	for _, table := range spec.Tables {
		if !present[strings.ToLower(table.Name)] {
			diff.TablesToUpsert = append(diff.TablesToUpsert, table.Name)
		}
	}
	return diff
}

// ApplyResult - итог применения схемы
type ApplyResult struct {
	DatasetID      string   `json:"dataset_id"`
	ChangesApplied bool     `json:"changes_applied"`
	TablesCreated  []string `json:"tables_created,omitempty"`
}

// Provisioner создает набор данных и доводит его схему до спецификации
type Provisioner struct {
	api      DatasetAPI
	registry models.DatasetRegistry
	retry    *load.RetryPolicy
	logger   *utils.ETLLogger
}

// NewProvisioner создает новый экземпляр Provisioner
func NewProvisioner(api DatasetAPI, registry models.DatasetRegistry, retry *load.RetryPolicy, logger *utils.ETLLogger) *Provisioner {
	if retry == nil {
		retry = load.DefaultRetryPolicy()
	}
	return &Provisioner{
		api:      api,
		registry: registry,
		retry:    retry,
		logger:   logger,
	}
}

// EnsureDataset возвращает ID набора данных с именем datasetName, создавая его при необходимости.
// Найденный или созданный ID сохраняется в реестре.
func (p *Provisioner) EnsureDataset(ctx context.Context, datasetName string, spec *models.DatasetSpec) (string, error) {
	groupID := p.api.GroupID()

	// 1. Ищем в реестре
	knownID, err := p.registry.Lookup(groupID, datasetName)
	if err != nil {
		return "", err
	}
	if knownID != "" {
		p.logger.Debug("Набор данных %s найден в реестре: %s", datasetName, knownID)
		return knownID, nil
	}

	// 2. Ищем среди наборов рабочей области
	var datasets []load.DatasetInfo
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		datasets, err = p.api.ListDatasets(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ошибка при получении списка наборов данных: %w", err)
	}
	for _, dataset := range datasets {
		if strings.EqualFold(dataset.Name, datasetName) {
			p.logger.Info("Найден существующий набор данных %s: %s", dataset.Name, dataset.ID)
			return dataset.ID, p.register(groupID, datasetName, dataset.ID)
		}
	}

	// 3. Создаем новый набор
	desired := *spec
	desired.Name = datasetName

	var created load.DatasetInfo
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = p.api.CreateDataset(ctx, &desired)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ошибка при создании набора данных %s: %w", datasetName, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("приемник не вернул ID созданного набора данных %s", datasetName)
	}

	p.logger.Info("Создан набор данных %s: %s", datasetName, created.ID)
	return created.ID, p.register(groupID, datasetName, created.ID)
}

func (p *Provisioner) register(groupID, datasetName, datasetID string) error {
	if err := p.registry.Register(groupID, datasetName, datasetID); err != nil {
		return fmt.Errorf("ошибка при сохранении набора данных в реестре: %w", err)
	}
	return nil
}

// ApplySchema проверяет спецификацию, обеспечивает наличие набора данных и создает недостающие таблицы
func (p *Provisioner) ApplySchema(ctx context.Context, datasetName string, spec *models.DatasetSpec) (*ApplyResult, error) {
	// 1. Проверяем спецификацию
	if err := models.ValidateSpec(spec); err != nil {
		return nil, err
	}

	// 2. Получаем или создаем набор данных
	datasetID, err := p.EnsureDataset(ctx, datasetName, spec)
	if err != nil {
		return nil, err
	}

	// 3. Сравниваем схемы
	var existing []load.TableInfo
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		existing, err = p.api.ListTables(ctx, datasetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении таблиц набора данных %s: %w", datasetID, err)
	}
	diff := SchemaDiff(spec, existing)

	// 4. Создаем недостающие таблицы
	result := &ApplyResult{DatasetID: datasetID, ChangesApplied: diff.HasChanges()}
	for _, name := range diff.TablesToUpsert {
		table, ok := spec.Table(name)
		if !ok {
			continue
		}
		err := p.retry.Do(ctx, func(ctx context.Context) error {
			return p.api.PutTable(ctx, datasetID, table)
		})
		if err != nil {
			return result, fmt.Errorf("ошибка при создании таблицы %s: %w", name, err)
		}
		result.TablesCreated = append(result.TablesCreated, name)
		p.logger.Info("Создана таблица %s в наборе данных %s", name, datasetID)
	}

	if !diff.HasChanges() {
		p.logger.Info("Схема набора данных %s актуальна", datasetID)
	}
	return result, nil
}
