package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAMPUS_FEED_WINDOW", "")
	t.Setenv("KAMPUS_PIN_OUT_OF_REGION", "")
	cfg := Load()
	if cfg.FeedWindow != 50 {
		t.Fatalf("FeedWindow = %d, want 50", cfg.FeedWindow)
	}
	if cfg.CampusLat != 39.9055 || cfg.CampusLng != 41.2658 {
		t.Fatalf("campus = %v,%v", cfg.CampusLat, cfg.CampusLng)
	}
	if cfg.PinOutOfRegion {
		t.Fatal("PinOutOfRegion should default to false")
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Fatalf("AccessTTL = %v", cfg.AccessTTL)
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("KAMPUS_FEED_BLOCK_MS", "250")
	t.Setenv("KAMPUS_PIN_OUT_OF_REGION", "true")
	t.Setenv("KAMPUS_CAMPUS_LAT", "not-a-number")
	t.Setenv("KAMPUS_ADMIN_EMAIL", "Yonetim@Kampus.Edu.TR")
	cfg := Load()
	if cfg.FeedBlock != 250*time.Millisecond {
		t.Fatalf("FeedBlock = %v", cfg.FeedBlock)
	}
	if !cfg.PinOutOfRegion {
		t.Fatal("PinOutOfRegion not applied")
	}
	if cfg.CampusLat != 39.9055 {
		t.Fatalf("CampusLat fallback = %v", cfg.CampusLat)
	}
	if cfg.AdminEmail != "yonetim@kampus.edu.tr" {
		t.Fatalf("AdminEmail = %q", cfg.AdminEmail)
	}
}
