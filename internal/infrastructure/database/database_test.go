package database

import (
	"strings"
	"testing"

	"github.com/MaxTT-Billing/maxtt-referrals-api/internal/config"
)

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "mysql",
			cfg:  config.DatabaseConfig{Driver: DriverMySQL, User: "u", Password: "p", Host: "h", Port: 3306, Database: "d"},
			want: "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name: "sqlite uses database as path",
			cfg:  config.DatabaseConfig{Driver: DriverSQLite, Database: "refs.db"},
			want: "refs.db",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetDSN(&tt.cfg); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}

	pg := GetDSN(&config.DatabaseConfig{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Database: "refs", SSLMode: "disable"})
	for _, part := range []string{"host=db", "port=5432", "dbname=refs", "sslmode=disable"} {
		if !strings.Contains(pg, part) {
			t.Errorf("postgres dsn %q missing %q", pg, part)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(&config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open(&config.DatabaseConfig{
		Driver:       DriverSQLite,
		DSN:          "file:migrate_test?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []string{"referrals", "api_keys", "credits", "franchisees", "outbox_message"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s not created", table)
		}
	}
	// 重复迁移是幂等的
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
