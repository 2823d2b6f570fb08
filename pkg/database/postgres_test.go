package database

import (
	"testing"
	"time"
)

func TestParsePoolConfigAppliesOptions(t *testing.T) {
	cfg, err := ParsePoolConfig("postgres://u:p@db:5432/greenway?sslmode=disable", PoolOptions{
		MaxConns:        12,
		MinConns:        2,
		MaxConnIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("ParsePoolConfig returned error: %v", err)
	}
	if cfg.MaxConns != 12 || cfg.MinConns != 2 || cfg.MaxConnIdleTime != time.Minute {
		t.Fatalf("options not applied: max=%d min=%d idle=%v", cfg.MaxConns, cfg.MinConns, cfg.MaxConnIdleTime)
	}
	if cfg.ConnConfig.Host != "db" || cfg.ConnConfig.Database != "greenway" {
		t.Fatalf("unexpected conn config %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	}

	cfg, err = ParsePoolConfig("postgres://u:p@db:5432/greenway", PoolOptions{MaxConns: 3, MinConns: 9})
	if err != nil {
		t.Fatalf("ParsePoolConfig returned error: %v", err)
	}
	if cfg.MinConns > cfg.MaxConns {
		t.Fatalf("min_conns %d must not exceed max_conns %d", cfg.MinConns, cfg.MaxConns)
	}

	if _, err := ParsePoolConfig("::not a dsn::", PoolOptions{}); err == nil {
		t.Fatalf("expected parse error")
	}
}
