package todoman_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestDockerfileMultiStageBuild(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// マルチステージビルドの確認: ビルドステージと実行ステージが存在すること
	if !strings.Contains(content, "FROM golang:") {
		t.Error("Dockerfile should contain a Go builder stage (FROM golang:)")
	}

	// 最終ステージは軽量イメージであること
	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") && !strings.Contains(lastFrom, "alpine") && !strings.Contains(lastFrom, "scratch") {
		t.Errorf("final stage should use a minimal base image (distroless/alpine/scratch), got: %s", lastFrom)
	}
}

func TestDockerfileBinaryAndEntrypoint(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "./cmd/todoman") {
		t.Error("Dockerfile should build ./cmd/todoman")
	}
	if !strings.Contains(content, `ENTRYPOINT ["/todoman"]`) {
		t.Error("Dockerfile should use the todoman binary as ENTRYPOINT")
	}
}

func TestDockerfileHealthcheckUsesSubcommand(t *testing.T) {
	content := readFile(t, "Dockerfile")

	// distrolessにはcurlがないため、バイナリのhealthcheckサブコマンドを使うこと
	if !strings.Contains(content, `HEALTHCHECK`) || !strings.Contains(content, `"healthcheck"`) {
		t.Error("Dockerfile HEALTHCHECK should run the healthcheck subcommand")
	}
}

func TestDockerfileDataVolume(t *testing.T) {
	content := readFile(t, "Dockerfile")

	if !strings.Contains(content, "DATA_DIR=/data") || !strings.Contains(content, `VOLUME ["/data"]`) {
		t.Error("Dockerfile should keep data files on the /data volume")
	}
}

func TestDockerComposeServices(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	for _, svc := range []string{"api:", "prometheus:"} {
		if !strings.Contains(content, svc) {
			t.Errorf("docker-compose.yml should contain service %q", svc)
		}
	}
}

func TestDockerComposeRequiresSecret(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "JWT_SECRET: ${JWT_SECRET:?") {
		t.Error("docker-compose.yml should require JWT_SECRET from the environment")
	}
}

func TestDockerComposePersistsData(t *testing.T) {
	content := readFile(t, "docker-compose.yml")

	if !strings.Contains(content, "todo-data:/data") {
		t.Error("docker-compose.yml should mount a named volume at /data")
	}
}

func TestPrometheusScrapesMetricsPort(t *testing.T) {
	content := readFile(t, "prometheus.yml")

	if !strings.Contains(content, "api:9090") {
		t.Error("prometheus.yml should scrape the api metrics port")
	}
}
