package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gorilla/mux"

	"github.com/LilVoxy/workflow_analytics/ETL/config"
	"github.com/LilVoxy/workflow_analytics/ETL/extractors"
	"github.com/LilVoxy/workflow_analytics/ETL/load"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/powerbi"
	"github.com/LilVoxy/workflow_analytics/ETL/transform"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/processor"
	"github.com/LilVoxy/workflow_analytics/routes"
	"github.com/LilVoxy/workflow_analytics/websocket"
)

// app содержит общие для всех режимов зависимости
type app struct {
	config config.ETLConfig
	logger *utils.ETLLogger
	spec   *models.DatasetSpec
	db     *sql.DB
}

func newApp(envFile string, requireCredentials bool) (*app, error) {
	// Получаем конфигурацию
	etlConfig, err := config.LoadConfig(envFile)
	if err != nil {
		return nil, err
	}
	if err := etlConfig.Validate(requireCredentials); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}

	// Инициализируем логгер
	logger := utils.NewETLLogger(etlConfig.EnableDetailedLogging)
	logger.Info("Инициализация ETL Runner")

	spec, err := models.BuildModelSpec(etlConfig.PowerBI.DatasetName)
	if err != nil {
		return nil, fmt.Errorf("ошибка построения спецификации набора данных: %w", err)
	}

	return &app{config: etlConfig, logger: logger, spec: spec}, nil
}

// connect подключается к OLAP базе данных и создает служебные таблицы
func (a *app) connect() (models.RefreshLogRepository, models.DatasetRegistry, error) {
	db, err := config.ConnectOLAP(a.config.OLAPConfig, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.db = db

	runs := models.NewMySQLRefreshLogRepository(db)
	if err := runs.CreateRefreshLogTable(); err != nil {
		return nil, nil, fmt.Errorf("ошибка при создании таблицы журнала запусков: %w", err)
	}

	registry := models.NewMySQLDatasetRegistry(db)
	if err := registry.CreateRegistryTable(); err != nil {
		return nil, nil, fmt.Errorf("ошибка при создании реестра наборов данных: %w", err)
	}

	return runs, registry, nil
}

// Close закрывает соединения с базами данных
func (a *app) Close() {
	a.logger.Info("Завершение работы ETL Runner")
	config.CloseOLAP(a.db, a.logger)
}

func (a *app) retryPolicy() *load.RetryPolicy {
	policy := load.DefaultRetryPolicy()
	policy.MaxRetries = a.config.Retry.MaxRetries
	policy.Notify = func(err error, attempt int, delay time.Duration) {
		a.logger.Warn("Повтор %d через %v после ошибки: %v", attempt, delay, err)
	}
	return policy
}

func (a *app) newTransformer() (*transform.Transformer, error) {
	location, err := a.config.Location()
	if err != nil {
		return nil, err
	}
	return transform.NewTransformer(a.spec, location, a.logger), nil
}

func (a *app) newProvisioner(ctx context.Context, registry models.DatasetRegistry) (*powerbi.Client, *powerbi.Provisioner) {
	pbi := a.config.PowerBI
	client := powerbi.NewClient(ctx, powerbi.Credentials{
		TenantID:     pbi.TenantID,
		ClientID:     pbi.ClientID,
		ClientSecret: pbi.ClientSecret,
	}, pbi.GroupID, a.config.HTTPTimeout, a.logger)
	return client, powerbi.NewProvisioner(client, registry, a.retryPolicy(), a.logger)
}

// newRefreshRunner собирает конвейер обновления; progress может быть nil
func (a *app) newRefreshRunner(ctx context.Context, progress *websocket.Manager) (*RefreshRunner, error) {
	runs, registry, err := a.connect()
	if err != nil {
		return nil, err
	}

	transformer, err := a.newTransformer()
	if err != nil {
		return nil, err
	}

	client, provisioner := a.newProvisioner(ctx, registry)
	governor := load.NewQuotaGovernor(a.config.SinkLimits, nil)

	runner := &RefreshRunner{
		config:      a.config,
		spec:        a.spec,
		logger:      a.logger,
		source:      extractors.NewExtractor(a.config.DataDir, a.logger),
		transformer: transformer,
		provisioner: provisioner,
		runs:        runs,
		baseCtx:     ctx,
	}

	// Интерфейсы получают только ненулевой хаб
	var reporter load.ProgressReporter
	if progress != nil {
		reporter = progress
		runner.notifier = progress
	}
	runner.loader = load.NewLoadManager(client, governor, a.retryPolicy(), reporter, a.logger, a.config.MaxBatchSize)

	return runner, nil
}

// RunOnce выполняет обновление один раз
func RunOnce(ctx context.Context, envFile string) error {
	a, err := newApp(envFile, true)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.newRefreshRunner(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка при создании RefreshRunner: %w", err)
	}
	return runner.ExecuteRefresh(ctx)
}

// RunScheduled выполняет обновление по расписанию и обслуживает API мониторинга
func RunScheduled(ctx context.Context, envFile string) error {
	a, err := newApp(envFile, true)
	if err != nil {
		return err
	}
	defer a.Close()

	progress := websocket.NewManager(a.logger)
	go progress.Run(ctx)

	runner, err := a.newRefreshRunner(ctx, progress)
	if err != nil {
		return fmt.Errorf("ошибка при создании RefreshRunner: %w", err)
	}

	// API мониторинга
	router := mux.NewRouter()
	routes.SetupRoutes(router, routes.Deps{
		Runs:     runner.runs,
		Trigger:  runner,
		Progress: progress,
		Logger:   a.logger,
	})
	server := &http.Server{
		Addr:              a.config.MonitorAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		a.logger.Info("API мониторинга слушает %s", a.config.MonitorAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Ошибка HTTP сервера мониторинга: %v", err)
		}
	}()

	// Планировщик
	scheduler := gocron.NewScheduler(time.UTC)
	a.logger.Info("Запуск планировщика с интервалом %v", a.config.RunInterval)
	_, err = scheduler.Every(a.config.RunInterval).SingletonMode().Do(func() {
		a.logger.Info("Запланированный запуск обновления")
		if err := runner.ExecuteRefresh(ctx); err != nil {
			if errors.Is(err, errRefreshInProgress) {
				a.logger.Warn("Запланированный запуск пропущен: %v", err)
				return
			}
			a.logger.Error("Ошибка при выполнении запланированного обновления: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("ошибка при настройке планировщика: %w", err)
	}
	scheduler.StartAsync()

	// Ожидаем сигнал остановки из контекста
	<-ctx.Done()

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Ошибка при остановке HTTP сервера: %v", err)
	}
	a.logger.Info("Планировщик остановлен")
	return nil
}

// RunPlan строит таблицы (или читает архив snapshotDir) и выводит план загрузки без обращения к приемнику.
// Непустой excelPath дополнительно сохраняет таблицы в книгу Excel.
func RunPlan(envFile, snapshotDir, excelPath string) error {
	a, err := newApp(envFile, false)
	if err != nil {
		return err
	}

	var tables map[string][]models.Row
	if snapshotDir != "" {
		var manifest *processor.SnapshotManifest
		tables, manifest, err = processor.ReadSnapshot(snapshotDir)
		if err != nil {
			return err
		}
		a.logger.Info("Прочитан архив %s от %s", snapshotDir, manifest.CreatedAt.Format(time.RFC3339))
	} else {
		transformer, err := a.newTransformer()
		if err != nil {
			return err
		}
		runner := &RefreshRunner{
			config:      a.config,
			logger:      a.logger,
			source:      extractors.NewExtractor(a.config.DataDir, a.logger),
			transformer: transformer,
		}
		if tables, err = runner.buildTables(time.Now()); err != nil {
			return err
		}
	}

	plans, err := load.PlanWipeAndReload(a.spec, tables, a.config.MaxBatchSize)
	if err != nil {
		return err
	}
	if excelPath != "" {
		if err := processor.WriteWorkbook(excelPath, a.spec, tables); err != nil {
			return err
		}
		a.logger.Info("Таблицы сохранены в книгу %s", excelPath)
	}
	for _, plan := range plans {
		a.logger.Info("Таблица %s: строк %d, пакетов %d", plan.Table, plan.Rows, len(plan.Batches))
	}

	summary := load.Summarize(plans)
	a.logger.Info("Итого: таблиц %d, строк %d, запросов на вставку %d (квота %d строк/час)",
		summary.Tables, summary.TotalRows, summary.TotalPostRequests, a.config.SinkLimits.MaxRowsPerHour)
	if summary.TotalRows > a.config.SinkLimits.MaxRowsPerHour {
		a.logger.Warn("Загрузка превысит часовую квоту строк и будет ждать освобождения окна")
	}
	return nil
}

// RunProvision создает набор данных и недостающие таблицы
func RunProvision(ctx context.Context, envFile string) error {
	a, err := newApp(envFile, true)
	if err != nil {
		return err
	}
	defer a.Close()

	_, registry, err := a.connect()
	if err != nil {
		return err
	}

	_, provisioner := a.newProvisioner(ctx, registry)
	result, err := provisioner.ApplySchema(ctx, a.config.PowerBI.DatasetName, a.spec)
	if err != nil {
		return err
	}

	a.logger.Info("Набор данных %s готов. Создано таблиц: %d %v", result.DatasetID, len(result.TablesCreated), result.TablesCreated)
	return nil
}

func main() {
	// Параметры командной строки
	modePtr := flag.String("mode", "scheduled", "Режим работы: scheduled, once, plan или provision")
	envPtr := flag.String("env", ".env", "Файл переменных окружения")
	snapshotPtr := flag.String("snapshot", "", "Директория архива таблиц (только для режима plan)")
	excelPtr := flag.String("excel", "", "Файл книги Excel для таблиц (только для режима plan)")

	flag.Parse()

	log.Println("Запуск ETL Runner в режиме:", *modePtr)

	// Создаем контекст, который будет отменен при получении сигнала завершения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch *modePtr {
	case "once":
		err = RunOnce(ctx, *envPtr)
	case "scheduled":
		err = RunScheduled(ctx, *envPtr)
	case "plan":
		err = RunPlan(*envPtr, *snapshotPtr, *excelPtr)
	case "provision":
		err = RunProvision(ctx, *envPtr)
	default:
		log.Println("Неизвестный режим работы:", *modePtr)
		log.Println("Доступные режимы: scheduled, once, plan, provision")
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Ошибка при выполнении режима %s: %v", *modePtr, err)
	}
	log.Println("ETL Runner завершил работу")
}
