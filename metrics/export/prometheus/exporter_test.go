package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	goFactor "github.com/MrEthical07/goFactor"
)

type fakeSource struct {
	snapshot goFactor.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goFactor.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func scrape(t *testing.T, exp *Exporter) string {
	t.Helper()
	rr := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goFactor.MetricsSnapshot{
			Counters:   map[goFactor.MetricID]uint64{},
			Histograms: map[goFactor.MetricID][]uint64{},
		},
	})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no metrics for disabled engine, got %d", n)
	}
}

func TestHandlerRendersCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: goFactor.MetricsSnapshot{
			Counters: map[goFactor.MetricID]uint64{
				goFactor.MetricChallengeVerified: 7,
			},
			Histograms: map[goFactor.MetricID][]uint64{
				goFactor.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"gofactor_challenge_verified_total 7",
		"gofactor_challenge_issued_total 0",
		`gofactor_verify_latency_seconds_bucket{le="0.001"} 1`,
		`gofactor_verify_latency_seconds_bucket{le="0.25"} 28`,
		`gofactor_verify_latency_seconds_bucket{le="+Inf"} 36`,
		"gofactor_verify_latency_seconds_count 36",
		"gofactor_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestCollectorRegistersWithCallerRegistry(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goFactor.MetricsSnapshot{
			Counters: map[goFactor.MetricID]uint64{goFactor.MetricBackupCodeUsed: 1},
		},
	})
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "gofactor_backup_code_used_total" {
			found = true
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 1 {
				t.Fatalf("expected 1, got %v", v)
			}
		}
	}
	if !found {
		t.Fatal("backup code counter missing from gather")
	}
}

func TestExporterReadsLiveEngine(t *testing.T) {
	cfg := goFactor.DefaultConfig()
	cfg.Store.SweepInterval = 0
	cfg.Metrics.Enabled = true
	cfg.BackupCodes.Pepper = []byte("prom-test-pepper")
	engine, err := goFactor.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	issued, err := engine.IssueChallenge(ctx, "alice", goFactor.FactorOTPEmail, goFactor.IssueOptions{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := engine.VerifyResponse(ctx, "alice", goFactor.FactorOTPEmail, issued.Secret); err != nil {
		t.Fatalf("verify: %v", err)
	}

	out := scrape(t, NewExporter(engine))
	if !strings.Contains(out, "gofactor_challenge_issued_total 1") {
		t.Fatalf("expected issued counter, got:\n%s", out)
	}
	if !strings.Contains(out, "gofactor_challenge_verified_total 1") {
		t.Fatalf("expected verified counter, got:\n%s", out)
	}
}
