package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Record string            `yaml:"record"`
			Alert  string            `yaml:"alert"`
			Expr   string            `yaml:"expr"`
			Labels map[string]string `yaml:"labels"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "grafana", "insightbot_dashboard.json")

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	rules := readRules(t, "insightbot_rules.yaml")

	alerts := map[string]map[string]string{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			if rule.Alert != "" {
				alerts[rule.Alert] = rule.Labels
			}
		}
	}
	requiredAlerts := []string{
		"InsightBotAskLatencyP95High",
		"InsightBotQueryErrorRatioHigh",
		"InsightBotModelFallbacksDetected",
		"InsightBotDatasetReloadFailed",
		"InsightBotHTTPErrorRateHigh",
	}
	for _, name := range requiredAlerts {
		labels, ok := alerts[name]
		if !ok {
			t.Fatalf("rules missing alert %q", name)
		}
		if labels["severity"] != "warning" && labels["severity"] != "critical" {
			t.Fatalf("alert %q severity = %q", name, labels["severity"])
		}
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	rules := readRules(t, "insightbot_recording_rules.yaml")

	records := map[string]bool{}
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			records[rule.Record] = true
		}
	}
	requiredRecords := []string{
		"insightbot:slo_ask_latency_ms_p95",
		"insightbot:slo_query_latency_ms_p95",
		"insightbot:slo_cache_hit_ratio_15m",
		"insightbot:slo_query_error_ratio_15m",
		"insightbot:slo_model_fallbacks_15m",
		"insightbot:slo_reload_failures_1h",
		"insightbot:slo_http_error_rate_5m",
	}
	for _, name := range requiredRecords {
		if !records[name] {
			t.Fatalf("recording rules missing record %q", name)
		}
	}
}

func TestRecordingRulesReferenceExportedMetrics(t *testing.T) {
	rules := readRules(t, "insightbot_recording_rules.yaml")

	var source strings.Builder
	for _, name := range []string{"metrics.go", "domain_metrics.go"} {
		raw, err := os.ReadFile(filepath.Join(repoRoot(t), "internal", "observability", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		source.Write(raw)
	}

	metricName := regexp.MustCompile(`insightbot_[a-z_]+`)
	for _, group := range rules.Groups {
		for _, rule := range group.Rules {
			for _, name := range metricName.FindAllString(rule.Expr, -1) {
				name = strings.TrimSuffix(name, "_bucket")
				if !strings.Contains(source.String(), `"`+name+`"`) {
					t.Fatalf("record %q references unknown metric %q", rule.Record, name)
				}
			}
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := string(readAsset(t, "prometheus", "prometheus-scrape.example.yaml"))

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"insightbot_rules.yaml",
		"insightbot_recording_rules.yaml",
		"job_name: insightbot-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func readRules(t *testing.T, name string) ruleFile {
	t.Helper()
	var rules ruleFile
	if err := yaml.Unmarshal(readAsset(t, "prometheus", name), &rules); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	if len(rules.Groups) == 0 {
		t.Fatalf("%s has no rule groups", name)
	}
	return rules
}

func readAsset(t *testing.T, parts ...string) []byte {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
