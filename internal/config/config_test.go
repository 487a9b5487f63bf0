package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLM.APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected API key placeholder")
	}
	if cfg.LLM.ExtractionModel == "" || cfg.LLM.FilteringModel == "" || cfg.LLM.ReasoningModel == "" {
		t.Error("expected a default model per tier")
	}
	if cfg.Defra.ContainerName != "distill-defra" {
		t.Errorf("container name = %q", cfg.Defra.ContainerName)
	}
	if cfg.Server.Port == 0 {
		t.Error("expected a default server port")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToLLMConfig(t *testing.T) {
	os.Setenv("TEST_LLM_KEY", "llm-key-456")
	defer os.Unsetenv("TEST_LLM_KEY")

	cfg := DefaultConfig()
	cfg.LLM.APIKey = "${TEST_LLM_KEY}"
	cfg.LLM.TimeoutSeconds = 30

	out := cfg.ToLLMConfig()
	if out.APIKey != "llm-key-456" {
		t.Errorf("API key = %q, env reference not resolved", out.APIKey)
	}
	if out.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", out.Timeout)
	}
	if out.ExtractionModel != cfg.LLM.ExtractionModel {
		t.Errorf("extraction model = %q", out.ExtractionModel)
	}
}

func TestWriteDefault(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Distill configuration") {
		t.Error("missing header comment")
	}
	for _, key := range []string{"llm:", "defra:", "server:", "extraction_model:"} {
		if !strings.Contains(content, key) {
			t.Errorf("written config missing %q", key)
		}
	}
}
