package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRegistryFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestNew_DiscoversServicesKeyedByBasenameAndServiceName(t *testing.T) {
	servicesDir := t.TempDir()
	providersDir := t.TempDir()

	writeRegistryFile(t, servicesDir, "whisper-compose.yaml", `
services:
  transcriber:
    image: ushadow/whisper:latest
    environment:
      - MODEL_SIZE=${MODEL_SIZE:-base}
      - API_TOKEN
      - FIXED=hardcoded-value
    ports:
      - "9000:9000"
`)

	r, err := New(servicesDir, providersDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	def, ok := r.Get("whisper:transcriber")
	if !ok {
		t.Fatalf("expected service whisper:transcriber, got %#v", r.AllServices())
	}
	if def.Image != "ushadow/whisper:latest" {
		t.Errorf("image = %q", def.Image)
	}

	byKey := map[string]EnvVarDecl{}
	for _, e := range def.Env {
		byKey[e.Key] = e
	}
	if byKey["MODEL_SIZE"].Kind != EnvOptional || byKey["MODEL_SIZE"].Default != "base" {
		t.Errorf("MODEL_SIZE = %+v", byKey["MODEL_SIZE"])
	}
	if byKey["API_TOKEN"].Kind != EnvRequired {
		t.Errorf("API_TOKEN = %+v", byKey["API_TOKEN"])
	}
	if byKey["FIXED"].Kind != EnvHardcoded || byKey["FIXED"].Value != "hardcoded-value" {
		t.Errorf("FIXED = %+v", byKey["FIXED"])
	}
}

func TestDefaultProvidersFor_OrdersByDefaultThenCloudThenName(t *testing.T) {
	servicesDir := t.TempDir()
	providersDir := t.TempDir()

	writeRegistryFile(t, providersDir, "openai.yaml", "id: openai\ncapability: llm\nmode: cloud\nname: OpenAI\n")
	writeRegistryFile(t, providersDir, "ollama.yaml", "id: ollama\ncapability: llm\nmode: local\nname: Ollama\nis_default: true\nimage: ollama/ollama\n")
	writeRegistryFile(t, providersDir, "anthropic.yaml", "id: anthropic\ncapability: llm\nmode: cloud\nname: Anthropic\n")

	r, err := New(servicesDir, providersDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ordered := r.DefaultProvidersFor("llm", nil)
	if len(ordered) != 3 {
		t.Fatalf("expected 3 providers, got %d", len(ordered))
	}
	if ordered[0].ID != "ollama" {
		t.Errorf("expected default provider ollama first, got %s", ordered[0].ID)
	}
	if ordered[1].ID != "anthropic" || ordered[2].ID != "openai" {
		t.Errorf("expected cloud providers alphabetically after default, got %s, %s", ordered[1].ID, ordered[2].ID)
	}
}

func TestReload_NeverExposesPartialStateOnError(t *testing.T) {
	servicesDir := t.TempDir()
	providersDir := t.TempDir()
	writeRegistryFile(t, servicesDir, "good-compose.yaml", "services:\n  a:\n    image: x\n")

	r, err := New(servicesDir, providersDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(r.AllServices()) != 1 {
		t.Fatalf("expected 1 service before broken reload")
	}

	writeRegistryFile(t, servicesDir, "broken-compose.yaml", "services: [this is not a mapping")
	if err := r.Reload(); err == nil {
		t.Fatal("expected Reload to fail on malformed compose file")
	}
	if len(r.AllServices()) != 1 {
		t.Errorf("a failed reload must not mutate the exposed index, got %d services", len(r.AllServices()))
	}
}
