package crypto

import "testing"

func TestHashAndCheckPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword("correct horse battery staple", hash) {
		t.Error("CheckPassword() = false, want true for the original password")
	}
}

func TestCheckPasswordRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if CheckPassword("wrong password", hash) {
		t.Error("CheckPassword() = true, want false for a mismatched password")
	}
}

func TestHashPasswordProducesDistinctSaltsPerCall(t *testing.T) {
	a, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	b, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if a == b {
		t.Error("HashPassword() produced identical hashes for two calls, want distinct salts")
	}
}

func TestGenerateRandomTokenLengthAndUniqueness(t *testing.T) {
	a := GenerateRandomToken(32)
	b := GenerateRandomToken(32)

	if len(a) != 64 {
		t.Errorf("len(token) = %d, want 64 (hex-encoded 32 bytes)", len(a))
	}
	if a == b {
		t.Error("GenerateRandomToken() returned identical tokens across calls")
	}
}
