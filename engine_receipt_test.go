package goFactor

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func receiptTestConfig(t *testing.T) Config {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	cfg := testConfig()
	cfg.Receipt.Enabled = true
	cfg.Receipt.PrivateKey = priv
	cfg.Receipt.PublicKey = pub
	cfg.Receipt.Audience = "session-service"
	return cfg
}

func TestReceiptsDisabledByDefault(t *testing.T) {
	e := buildTestEngine(t, testConfig(), newFakeClock())
	issued := mustIssue(t, e, "alice", FactorOTPEmail)

	_, _, err := e.VerifyResponseWithReceipt(context.Background(), "alice", FactorOTPEmail, issued.Secret)
	if !errors.Is(err, ErrReceiptsDisabled) {
		t.Fatalf("expected ErrReceiptsDisabled, got %v", err)
	}
	// the challenge was left alone
	if res := mustVerify(t, e, "alice", FactorOTPEmail, issued.Secret); !res.Success() {
		t.Fatalf("expected challenge to remain verifiable, got %v", res.Outcome)
	}
	if _, err := e.ParseReceipt("x.y.z"); !errors.Is(err, ErrReceiptsDisabled) {
		t.Fatalf("expected ErrReceiptsDisabled, got %v", err)
	}
}

func TestVerifyResponseWithReceipt(t *testing.T) {
	clock := newFakeClock()
	e := buildTestEngine(t, receiptTestConfig(t), clock)
	issued := mustIssue(t, e, "alice", FactorOTPSMS)

	res, token, err := e.VerifyResponseWithReceipt(context.Background(), "alice", FactorOTPSMS, issued.Secret)
	if err != nil {
		t.Fatalf("VerifyResponseWithReceipt failed: %v", err)
	}
	if !res.Success() || token == "" {
		t.Fatalf("expected success with token, got %v token=%q", res.Outcome, token)
	}

	claims, err := e.ParseReceipt(token)
	if err != nil {
		t.Fatalf("ParseReceipt failed: %v", err)
	}
	if claims.Principal() != "alice" || claims.Factor != "otp_sms" || claims.ChallengeID != issued.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if got := e.MetricsSnapshot().Counters[MetricReceiptIssued]; got != 1 {
		t.Fatalf("expected 1 receipt issued, got %d", got)
	}

	clock.Advance(3 * time.Minute)
	if _, err := e.ParseReceipt(token); !errors.Is(err, ErrReceiptInvalid) {
		t.Fatalf("expected expired receipt to be invalid, got %v", err)
	}
}

func TestReceiptNotIssuedOnFailure(t *testing.T) {
	e := buildTestEngine(t, receiptTestConfig(t), newFakeClock())
	issued := mustIssue(t, e, "alice", FactorOTPEmail)

	res, token, err := e.VerifyResponseWithReceipt(context.Background(), "alice", FactorOTPEmail, wrongResponse(issued.Secret))
	if err != nil {
		t.Fatalf("VerifyResponseWithReceipt failed: %v", err)
	}
	if res.Outcome != ResultRetry || token != "" {
		t.Fatalf("expected retry without token, got %v token=%q", res.Outcome, token)
	}
}

func TestReceiptForBackupCode(t *testing.T) {
	e := buildTestEngine(t, receiptTestConfig(t), newFakeClock())
	codes, err := e.EnrollBackupCodes(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("EnrollBackupCodes failed: %v", err)
	}

	_, token, err := e.VerifyResponseWithReceipt(context.Background(), "alice", FactorBackupCode, codes[0])
	if err != nil || token == "" {
		t.Fatalf("expected receipt for backup code, got err=%v", err)
	}
	claims, err := e.ParseReceipt(token)
	if err != nil {
		t.Fatalf("ParseReceipt failed: %v", err)
	}
	if claims.Factor != "backup_code" || claims.ChallengeID != "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseReceiptRejectsForeignToken(t *testing.T) {
	a := buildTestEngine(t, receiptTestConfig(t), newFakeClock())
	b := buildTestEngine(t, receiptTestConfig(t), newFakeClock())

	issued := mustIssue(t, a, "alice", FactorOTPEmail)
	_, token, err := a.VerifyResponseWithReceipt(context.Background(), "alice", FactorOTPEmail, issued.Secret)
	if err != nil {
		t.Fatalf("VerifyResponseWithReceipt failed: %v", err)
	}
	if _, err := b.ParseReceipt(token); !errors.Is(err, ErrReceiptInvalid) {
		t.Fatalf("expected ErrReceiptInvalid for a token signed by another key, got %v", err)
	}
}
