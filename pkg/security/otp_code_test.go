package security_test

import (
	"testing"

	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/security"
)

var testArgon = config.PasswordConfig{
	ArgonMemoryKB:    8192,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func TestHashAndVerifyCode(t *testing.T) {
	hash, err := security.HashCode("482913", testArgon)
	if err != nil {
		t.Fatalf("HashCode returned error: %v", err)
	}

	ok, err := security.VerifyCode("482913", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error for valid hash: %v", err)
	}
	if !ok {
		t.Fatal("expected matching code to verify")
	}

	ok, err = security.VerifyCode("482914", hash)
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched code to fail")
	}
}

func TestHashCodeSaltsEachHash(t *testing.T) {
	first, err := security.HashCode("000000", testArgon)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := security.HashCode("000000", testArgon)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts per hash")
	}
}

func TestVerifyCodeRejectsMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		if _, err := security.VerifyCode("123456", encoded); err != security.ErrInvalidHash {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", encoded, err)
		}
	}
}

func TestGenerateNumericCode(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := security.GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non digit in %q", code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("codes look non-random: %d unique of 50", len(seen))
	}
	if _, err := security.GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
