package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name     string
		duration Duration
		wantJSON string
	}{
		{"zero value", Duration(0), `"0s"`},
		{"90 seconds", Duration(90 * time.Second), `"1m30s"`},
		{"24 hours", Duration(24 * time.Hour), `"24h0m0s"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.duration)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.wantJSON {
				t.Errorf("Marshal() = %s, want %s", data, tt.wantJSON)
			}
			var got Duration
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.duration {
				t.Errorf("Unmarshal() = %v, want %v", got, tt.duration)
			}
		})
	}
}

func TestDuration_InvalidStrings(t *testing.T) {
	for _, in := range []string{`"soon"`, `"5"`, `""`} {
		var d Duration
		if err := json.Unmarshal([]byte(in), &d); err == nil {
			t.Errorf("Unmarshal(%s) expected error", in)
		}
	}
	var d Duration
	if err := yaml.Unmarshal([]byte("later"), &d); err == nil {
		t.Error("yaml Unmarshal expected error")
	}
}

func TestEngineConfig_YAML(t *testing.T) {
	input := `
name: prod
version: "2"
analysis:
  min_sample_size: 100
  lifecycle_stage: scaling
evolution:
  auto_approve_threshold: 0.85
  require_approval: true
  strategy: model
telemetry:
  backend: clickhouse
  dsn: clickhouse://localhost:9000/default
  window: 30m
  baseline_window: 12h
approval:
  enabled: true
  webhook_url: https://hooks.example.com/approve
  timeout: 5s
`
	var c EngineConfig
	if err := yaml.Unmarshal([]byte(input), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if c.Telemetry.Window.Duration() != 30*time.Minute {
		t.Errorf("Window = %v, want 30m", c.Telemetry.Window.Duration())
	}
	if c.Telemetry.BaselineWindow.Duration() != 12*time.Hour {
		t.Errorf("BaselineWindow = %v, want 12h", c.Telemetry.BaselineWindow.Duration())
	}
	if c.Approval.Timeout.Duration() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.Approval.Timeout.Duration())
	}

	policy := c.Evolution.Policy()
	if policy.AutoApproveThreshold == nil || *policy.AutoApproveThreshold != 0.85 {
		t.Errorf("AutoApproveThreshold = %v, want 0.85", policy.AutoApproveThreshold)
	}
	if !policy.RequireApproval {
		t.Error("RequireApproval = false, want true")
	}
	if policy.MinConfidence != nil {
		t.Errorf("MinConfidence = %v, want nil", *policy.MinConfidence)
	}
}

func TestAnalysisConfig_Thresholds(t *testing.T) {
	th := AnalysisConfig{}.Thresholds()
	if th.MinSampleSize != 50 || th.ErrorRate != 0.05 || th.LatencyP99Ms != 750 || th.ThroughputDrop != 0.2 {
		t.Errorf("default thresholds = %+v", th)
	}

	th = AnalysisConfig{MinSampleSize: 10, LatencyP99ThresholdMs: 200}.Thresholds()
	if th.MinSampleSize != 10 || th.LatencyP99Ms != 200 || th.ErrorRate != 0.05 {
		t.Errorf("overridden thresholds = %+v", th)
	}
}

func TestAnalysisConfig_Lifecycle(t *testing.T) {
	if (AnalysisConfig{}).Lifecycle() != nil {
		t.Error("empty stage should yield no lifecycle context")
	}
	if (AnalysisConfig{LifecycleStage: "unheard-of"}).Lifecycle() != nil {
		t.Error("unknown stage should yield no lifecycle context")
	}
	lc := (AnalysisConfig{LifecycleStage: "scaling"}).Lifecycle()
	if lc == nil || lc.Stage.String() != "scaling" {
		t.Errorf("Lifecycle() = %+v, want scaling", lc)
	}
}
