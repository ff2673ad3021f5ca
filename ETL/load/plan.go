package load

import (
	"sort"

	"github.com/LilVoxy/workflow_analytics/ETL/models"
)

// TablePlan - пакеты одной таблицы
type TablePlan struct {
	Table   string
	Rows    int
	Batches [][]models.Row
}

// PlanWipeAndReload проверяет предусловия и делит строки на пакеты в порядке таблиц спецификации.
// К приемнику не обращается.
func PlanWipeAndReload(spec *models.DatasetSpec, tables map[string][]models.Row, maxBatchSize int) ([]TablePlan, error) {
	// 1. Спецификация должна быть корректной
	if err := models.ValidateSpec(spec); err != nil {
		return nil, &PreconditionError{Err: err}
	}

	// 2. Набор таблиц должен совпадать со спецификацией
	specNames := spec.TableNames()
	specSet := make(map[string]bool, len(specNames))
	var missing []string
	for _, name := range specNames {
		specSet[name] = true
		if _, ok := tables[name]; !ok {
			missing = append(missing, name)
		}
	}
	var extra []string
	for name := range tables {
		if !specSet[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	if len(missing) > 0 || len(extra) > 0 {
		return nil, &PreconditionError{Missing: missing, Extra: extra}
	}

	// 3. Делим каждую таблицу на пакеты
	plans := make([]TablePlan, 0, len(specNames))
	for _, name := range specNames {
		batches, err := BatchRows(tables[name], maxBatchSize)
		if err != nil {
			return nil, &PreconditionError{Err: err}
		}
		plans = append(plans, TablePlan{Table: name, Rows: len(tables[name]), Batches: batches})
	}

	return plans, nil
}

// PlanSummary - сводка плана загрузки
type PlanSummary struct {
	Tables            int `json:"tables"`
	TotalRows         int `json:"total_rows"`
	TotalPostRequests int `json:"total_post_requests"`
}

// Summarize подсчитывает число строк и запросов на вставку по плану
func Summarize(plans []TablePlan) PlanSummary {
	summary := PlanSummary{Tables: len(plans)}
	for _, plan := range plans {
		summary.TotalRows += plan.Rows
		summary.TotalPostRequests += len(plan.Batches)
	}
	return summary
}
