package config

import (
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		"DATABASE_URL":            "postgres://localhost/weekplan",
		"REDIS_CONNECTION_STRING": "redis://localhost:6379",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Backend != BackendPostgres || c.ListenAddr != ":8080" {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.TasksCacheTTL != 30*time.Second || c.SettingsCacheTTL != time.Minute || c.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected TTLs %+v", c)
	}
	if c.MaxImageBytes != 5<<20 || c.EventsWorkers != 8 {
		t.Fatalf("unexpected limits %+v", c)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	c, err := FromEnv(envMap(map[string]string{
		"DEBUG":                        "true",
		"STORAGE_BACKEND":              "Tables",
		"STORAGE_CONNECTION_STRING":    "UseDevelopmentStorage=true",
		"REDIS_CONNECTION_STRING":      "localhost:6379",
		"FUNCTIONS_CUSTOMHANDLER_PORT": "7071",
		"SETTINGS_CACHE_TTL":           "2m",
		"EVENTS_QUEUE":                 "changes",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.Debug || c.Backend != BackendTables || c.ListenAddr != ":7071" {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.SettingsCacheTTL != 2*time.Minute || c.EventsQueue != "changes" {
		t.Fatalf("unexpected overrides %+v", c)
	}
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	base := map[string]string{
		"DATABASE_URL":            "postgres://localhost/weekplan",
		"REDIS_CONNECTION_STRING": "localhost:6379",
	}
	cases := map[string][2]string{
		"bad_ttl":      {"TASKS_CACHE_TTL", "soon"},
		"negative_ttl": {"IDEMPOTENCY_TTL", "-1s"},
		"bad_workers":  {"EVENTS_WORKERS", "0"},
		"bad_backend":  {"STORAGE_BACKEND", "mongo"},
		"no_redis":     {"REDIS_CONNECTION_STRING", ""},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			env := make(map[string]string, len(base)+1)
			for k, v := range base {
				env[k] = v
			}
			env[kv[0]] = kv[1]
			if _, err := FromEnv(envMap(env)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
