package goFactor

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func buildTracedEngine(t *testing.T) (*Engine, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	e := buildTestEngine(t, testConfig(), newFakeClock(), func(b *Builder) {
		b.WithTracerProvider(tp)
	})
	return e, rec
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestSpansCarryFactorAndOutcome(t *testing.T) {
	e, rec := buildTracedEngine(t)

	issued := mustIssue(t, e, "alice", FactorOTPSMS)
	mustVerify(t, e, "alice", FactorOTPSMS, wrongResponse(issued.Secret))
	mustVerify(t, e, "alice", FactorOTPSMS, issued.Secret)

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	wantNames := []string{"gofactor.IssueChallenge", "gofactor.VerifyResponse", "gofactor.VerifyResponse"}
	wantOutcomes := []string{"", "retry", "success"}
	for i, s := range spans {
		if s.Name() != wantNames[i] {
			t.Fatalf("span %d: name %q want %q", i, s.Name(), wantNames[i])
		}
		attrs := spanAttrs(s)
		if attrs["gofactor.factor"] != "otp_sms" {
			t.Fatalf("span %d: factor attribute %q", i, attrs["gofactor.factor"])
		}
		if attrs["gofactor.outcome"] != wantOutcomes[i] {
			t.Fatalf("span %d: outcome %q want %q", i, attrs["gofactor.outcome"], wantOutcomes[i])
		}
		for k, v := range attrs {
			if v == issued.Secret || v == "alice" {
				t.Fatalf("span %d attribute %s leaks %q", i, k, v)
			}
		}
	}
}

func TestSpanRecordsErrorStatus(t *testing.T) {
	e, rec := buildTracedEngine(t)

	if _, err := e.IssueChallenge(context.Background(), "", FactorOTPEmail, IssueOptions{}); err == nil {
		t.Fatal("expected invalid input error")
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}

func TestBackupCodeSpans(t *testing.T) {
	e, rec := buildTracedEngine(t)

	batch, err := e.EnrollBackupCodes(context.Background(), "alice", 2)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	mustVerify(t, e, "alice", FactorBackupCode, batch[0])

	spans := rec.Ended()
	if len(spans) != 2 || spans[0].Name() != "gofactor.EnrollBackupCodes" || spans[1].Name() != "gofactor.RedeemBackupCode" {
		t.Fatalf("unexpected spans: %v", spans)
	}
	if got := spanAttrs(spans[1])["gofactor.outcome"]; got != "success" {
		t.Fatalf("redeem outcome %q", got)
	}
}
