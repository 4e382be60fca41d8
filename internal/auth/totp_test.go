package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestEnroll_ProducesValidatableSecretAndPNG(t *testing.T) {
	enrollment, err := Enroll(1, "admin-1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if enrollment.Secret == "" {
		t.Fatal("expected a non-empty secret")
	}
	if len(enrollment.PNG) == 0 {
		t.Fatal("expected a non-empty PNG")
	}

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	m := New(filepath.Join(t.TempDir(), "whitelist.json"), Config{})
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Seed([]Entry{{UserID: 1}})
	if err := m.SetTOTPSecret(1, enrollment.Secret); err != nil {
		t.Fatalf("SetTOTPSecret: %v", err)
	}
	if !m.ValidateCode(1, code) {
		t.Fatal("expected freshly generated code to validate")
	}
	if m.ValidateCode(1, "000000") {
		t.Fatal("expected a bogus code to fail, vanishingly unlikely to collide")
	}
}

func TestRequiresTOTP(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "whitelist.json"), Config{})
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.Seed([]Entry{{UserID: 1}})
	if m.RequiresTOTP(1) {
		t.Fatal("expected no TOTP requirement before enrollment")
	}
	if err := m.SetTOTPSecret(1, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("SetTOTPSecret: %v", err)
	}
	if !m.RequiresTOTP(1) {
		t.Fatal("expected TOTP requirement after enrollment")
	}
}
