package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestCacheBounds(t *testing.T) {
	cfg := Default()
	cfg.CacheBytes = 1 << 20 // below the 10 MiB floor
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for tiny cache")
	}
	cfg = Default()
	cfg.CacheBytes = 2 << 30 // above the 1 GiB ceiling
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for oversized cache")
	}
}

func TestWorkerClamp(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentRenders = 4096
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.MaxConcurrentRenders > 4096 {
		t.Fatal("clamp increased worker count")
	}
}
