package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.InactivityMinutes != 60 {
		t.Fatalf("inactivity = %d, want 60", cfg.Pipeline.InactivityMinutes)
	}
	if cfg.Pipeline.MinRequestsPerUser != 5 {
		t.Fatalf("min requests = %d, want 5", cfg.Pipeline.MinRequestsPerUser)
	}
	if cfg.Storage.UseS3() {
		t.Fatalf("defaults should use the local store")
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GALLICANAV_PIPELINE__WORKERS", "12")
	t.Setenv("GALLICANAV_PIPELINE__PROCESS_BOTS", "true")
	t.Setenv("GALLICANAV_STORAGE__S3__BUCKET", "gallica-logs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.Workers != 12 {
		t.Fatalf("workers = %d, want 12", cfg.Pipeline.Workers)
	}
	if !cfg.Pipeline.ProcessBots {
		t.Fatalf("process_bots should be set")
	}
	if !cfg.Storage.UseS3() || cfg.Storage.S3.Bucket != "gallica-logs" {
		t.Fatalf("s3 config not picked up: %+v", cfg.Storage)
	}
}

func TestLoad_RejectsInvalidThreshold(t *testing.T) {
	t.Setenv("GALLICANAV_PIPELINE__INACTIVITY_MINUTES", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("zero inactivity window should fail validation")
	}
}
