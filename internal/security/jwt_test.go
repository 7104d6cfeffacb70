package security

import (
	"testing"
	"time"
)

func TestContractorToken_RoundTrip(t *testing.T) {
	token, err := IssueContractorToken("secret", "contractor-7", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseContractorToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ContractorID != "contractor-7" {
		t.Fatalf("expected contractor-7, got %q", claims.ContractorID)
	}
}

func TestParseContractorToken_Rejects(t *testing.T) {
	good, err := IssueContractorToken("secret", "c1", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseContractorToken("other-secret", good); errParse == nil {
		t.Fatalf("expected wrong secret to fail")
	}

	expired, err := IssueContractorToken("secret", "c1", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, errParse := ParseContractorToken("secret", expired); errParse == nil {
		t.Fatalf("expected expired token to fail")
	}

	if _, errParse := ParseContractorToken("secret", "not-a-token"); errParse == nil {
		t.Fatalf("expected garbage to fail")
	}
	if _, errIssue := IssueContractorToken("secret", " ", time.Hour, time.Now()); errIssue == nil {
		t.Fatalf("expected empty contractor to fail")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	b, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct secrets")
	}
	if _, errZero := GenerateSecret(0); errZero == nil {
		t.Fatalf("expected zero length to fail")
	}
}
