package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stele-indexer/internal/logging"
)

// statementExecer runs one SQL statement; ClickHouseDB satisfies it
type statementExecer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

// RunClickHouseMigrations applies every .sql file in migrationsPath in name
// order. Statements must be idempotent (CREATE ... IF NOT EXISTS) since
// ClickHouse keeps no migration ledger here.
func RunClickHouseMigrations(ctx context.Context, db statementExecer, migrationsPath string) error {
	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	if len(sqlFiles) == 0 {
		logging.WithField("path", migrationsPath).Warn("No ClickHouse migration files found")
		return nil
	}

	for _, filename := range sqlFiles {
		content, err := os.ReadFile(filepath.Join(migrationsPath, filename)) // #nosec G304 - path is built from the trusted migrations dir
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		logger := logging.WithField("file", filename)
		for i, stmt := range splitSQLStatements(string(content)) {
			logger.WithField("statement", i+1).Debugf("Executing %s", truncate(stmt, 80))
			if err := db.Exec(ctx, stmt); err != nil {
				logger.WithError(err).WithField("statement", i+1).Error("ClickHouse migration statement failed")
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filename, err)
			}
		}
		logger.Info("Applied ClickHouse migration")
	}

	return nil
}

// splitSQLStatements splits SQL content into statements on trailing
// semicolons, dropping blank and comment-only lines
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
