// Command migrate применяет SQL-миграции goose к базе из конфига (DB_* переменные).
//
// Использование:
//
//	go run ./cmd/migrate up          # Применить все миграции
//	go run ./cmd/migrate down        # Откатить последнюю миграцию
//	go run ./cmd/migrate status      # Статус миграций
//	go run ./cmd/migrate version     # Текущая версия схемы
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/SergeiKhy/brainplus-backend/internal/config"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <command>")
		fmt.Println("Commands: up, down, status, version, redo, up-to <version>, down-to <version>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.DB.Enabled() {
		log.Fatal("DB_HOST is required")
	}

	db, err := sql.Open("pgx", repository.DSN(cfg.DB))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := repository.MigrateDB(context.Background(), db, os.Args[1], os.Args[2:]...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
