// main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/LilVoxy/workflow_analytics/ETL/config"
	"github.com/LilVoxy/workflow_analytics/ETL/models"
	"github.com/LilVoxy/workflow_analytics/ETL/utils"
	"github.com/LilVoxy/workflow_analytics/routes"
)

// Сервер только для чтения журнала запусков: обновления выполняет ETL Runner,
// поэтому POST /api/refresh здесь отвечает 503.
func main() {
	envPtr := flag.String("env", ".env", "Файл переменных окружения")
	addrPtr := flag.String("addr", ":8080", "Адрес HTTP сервера")
	flag.Parse()

	log.Println("Запуск сервера журнала запусков...")

	etlConfig, err := config.LoadConfig(*envPtr)
	if err != nil {
		log.Fatalf("❌ Не удалось загрузить конфигурацию: %v", err)
	}
	logger := utils.NewETLLoggerWithWriter(os.Stdout, etlConfig.EnableDetailedLogging)

	// Инициализация базы данных
	db, err := config.ConnectOLAP(etlConfig.OLAPConfig, logger)
	if err != nil {
		log.Fatalf("❌ Не удалось инициализировать базу данных: %v", err)
	}
	defer config.CloseOLAP(db, logger)

	runs := models.NewMySQLRefreshLogRepository(db)
	if err := runs.CreateRefreshLogTable(); err != nil {
		log.Fatalf("❌ Не удалось создать таблицу журнала запусков: %v", err)
	}

	// Создаем маршрутизатор
	router := mux.NewRouter()
	routes.SetupRoutes(router, routes.Deps{Runs: runs, Logger: logger})

	// Статические файлы панели мониторинга
	router.PathPrefix("/").Handler(http.FileServer(http.Dir("public")))

	// Настраиваем сервер
	server := &http.Server{
		Addr:         *addrPtr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в отдельной горутине
	go func() {
		log.Printf("✅ Сервер запущен на %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Ошибка запуска сервера: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("⚠️ Получен сигнал завершения, останавливаем сервер...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("❌ Ошибка остановки сервера: %v", err)
	}

	log.Println("👋 Сервер остановлен")
}
