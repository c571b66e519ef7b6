package cli

import (
	"context"
	"testing"

	"bizdash/internal/config"
	"bizdash/internal/log"
)

func TestOptionalIntegrationsDisabledWithoutConfig(t *testing.T) {
	cfg := &config.Config{}
	if c := InitAMQP(log.Discard(), cfg); c != nil {
		t.Error("InitAMQP should return nil without AMQP_URL")
	}
	if e := InitExporter(context.Background(), log.Discard(), cfg); e != nil {
		t.Error("InitExporter should return nil without GOOGLE_SPREADSHEET_ID")
	}
}

func TestInitStoreMemory(t *testing.T) {
	cfg := &config.Config{DataBackend: config.BackendMemory, DataDir: t.TempDir()}
	res := InitStore(context.Background(), log.Discard(), cfg)
	defer res.Cleanup()
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
