package logging

import "testing"

func TestGetConfigFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantLevel  string
		wantFormat string
		wantSource bool
	}{
		{
			"production defaults",
			map[string]string{"ENVIRONMENT": EnvProduction},
			"info", "json", false,
		},
		{
			"development defaults",
			map[string]string{"ENVIRONMENT": EnvDevelopment},
			"debug", "text", true,
		},
		{
			"explicit overrides",
			map[string]string{
				"ENVIRONMENT": EnvProduction,
				"LOG_LEVEL":   "WARN",
				"LOG_FORMAT":  "TEXT",
			},
			"warn", "text", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			config := GetConfigFromEnv()
			if config.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", config.Level, tt.wantLevel)
			}
			if config.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", config.Format, tt.wantFormat)
			}
			if config.AddSource != tt.wantSource {
				t.Errorf("AddSource = %v, want %v", config.AddSource, tt.wantSource)
			}
		})
	}
}
