package database

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/pet-care-marketplace/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.Config{DBUser: "pets", DBPass: "p@ss", DBHost: "db", DBPort: "3306", DBName: "petcare"})
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse %s: %v", dsn, err)
	}
	if cfg.User != "pets" || cfg.Passwd != "p@ss" || cfg.Addr != "db:3306" || cfg.DBName != "petcare" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.ParseTime || !cfg.MultiStatements {
		t.Fatalf("parseTime and multiStatements must be on: %s", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("missing charset: %s", dsn)
	}
}
