package app

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "CATALOG_BACKEND", "RESULT_CACHE_TTL_MINUTES", "PAGE_SIZE", "DELIVERY_PROTECT", "SEARCH_SCORE_CUTOFF", "ALLOWED_USER_IDS", "SEARCH_SUBSTRING_POOL", "SEARCH_RECENT_POOL", "SEARCH_TITLE_CACHE_SIZE"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8080" || cfg.CatalogBackend != "sqlite" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ResultCacheTTL != 10*time.Minute || cfg.PageSize != 5 {
		t.Fatalf("unexpected cache defaults %+v", cfg)
	}
	if !cfg.DeliveryProtect || cfg.SearchScoreCutoff != 70 || cfg.SearchLimit != 30 {
		t.Fatalf("unexpected delivery/search defaults %+v", cfg)
	}
	if cfg.SubstringPool != 120 || cfg.RecentPool != 300 || cfg.TitleCacheSize != 4096 {
		t.Fatalf("unexpected pool defaults %+v", cfg)
	}
	if len(cfg.AllowedUserIDs) != 0 {
		t.Fatalf("expected empty allow list, got %v", cfg.AllowedUserIDs)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("CATALOG_BACKEND", "Mongo")
	t.Setenv("DELIVERY_PROTECT", "off")
	t.Setenv("DELIVERY_TTL_HOURS", "2")
	t.Setenv("PAGE_SIZE", "-3")
	t.Setenv("TELEGRAM_RPS", "12.5")
	t.Setenv("ALLOWED_USER_IDS", "1, 22;abc 333")

	cfg := LoadConfig()
	if cfg.CatalogBackend != "mongo" {
		t.Fatalf("expected lowercased backend, got %q", cfg.CatalogBackend)
	}
	if cfg.DeliveryProtect {
		t.Fatal("expected protection disabled")
	}
	if cfg.DeliveryTTL != 2*time.Hour {
		t.Fatalf("expected 2h TTL, got %v", cfg.DeliveryTTL)
	}
	if cfg.PageSize != 5 {
		t.Fatalf("invalid page size should fall back, got %d", cfg.PageSize)
	}
	if cfg.TelegramRPS != 12.5 {
		t.Fatalf("expected 12.5 rps, got %v", cfg.TelegramRPS)
	}
	if want := []int64{1, 22, 333}; !reflect.DeepEqual(cfg.AllowedUserIDs, want) {
		t.Fatalf("expected %v, got %v", want, cfg.AllowedUserIDs)
	}
}
