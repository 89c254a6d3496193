package tools

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed migration/*
var migrationFiles embed.FS

// Threshold crossings are journaled here. Sensor readings are never stored.
func ConnectSqlite(filePath string) (*sql.DB, error) {
	db, err := connectWithBackoff("sqlite3", filePath, 3, 3*time.Second)
	if err != nil {
		return nil, err
	}

	err = RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies every embedded migration in name order. Migrations
// must be idempotent, they run on every start.
func RunMigrations(db *sql.DB) error {
	dirEntries, err := fs.ReadDir(migrationFiles, "migration")
	if err != nil {
		return err
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })
	for _, entry := range dirEntries {
		fileName := path.Join("migration", entry.Name())
		fileData, err := fs.ReadFile(migrationFiles, fileName)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(fileData)); err != nil {
			return err
		}
		logrus.WithField("migration", entry.Name()).Debug("Applied migration")
	}

	return nil
}

func connectWithBackoff(driver string, connStr string, maxRetries int, backoff time.Duration) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open(driver, connStr)
		if err != nil {
			logrus.WithError(err).Warnf("Failed attempt to connect to %s", driver)
			time.Sleep(time.Duration(i+1) * backoff)
			continue
		}
		err = db.Ping()
		if err != nil {
			logrus.WithError(err).Warnf("Failed attempt to connect to %s", driver)
			db.Close()
			time.Sleep(time.Duration(i+1) * backoff)
			continue
		}
		return db, nil
	}
	return nil, err
}
