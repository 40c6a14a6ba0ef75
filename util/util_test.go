package util

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"testing"
)

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	if version == "" {
		t.Error("GetVersion returned empty string")
	}
	// The embedded file ends with a newline; the accessor must trim it
	if version != GetVersion() {
		t.Error("GetVersion should be stable")
	}
	for _, c := range version {
		if c == '\n' || c == ' ' {
			t.Errorf("Version contains whitespace: %q", version)
		}
	}
}

func TestGetNameAndVersion(t *testing.T) {
	result := GetNameAndVersion()
	expected := "anancus / " + GetVersion()

	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestUserAgent(t *testing.T) {
	result := UserAgent()
	expected := "anancus/" + GetVersion()

	if result != expected {
		t.Errorf("Expected '%s', got '%s'", expected, result)
	}
}

func TestRandomString(t *testing.T) {
	tests := []int{10, 16, 20, 32, 64}

	for _, length := range tests {
		t.Run(fmt.Sprintf("length_%d", length), func(t *testing.T) {
			result := RandomString(length)
			if len(result) != length {
				t.Errorf("Expected length %d, got %d", length, len(result))
			}
			for _, c := range result {
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
					t.Errorf("Expected hex characters only, got %q in %s", c, result)
				}
			}
		})
	}
}

func TestRandomStringUniqueness(t *testing.T) {
	// Generate multiple random strings and verify they're different
	results := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := RandomString(32)
		if results[s] {
			t.Errorf("RandomString produced duplicate: %s", s)
		}
		results[s] = true
	}
}

func TestPrettyPrint(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{
			name:  "simple map",
			input: map[string]string{"key": "value"},
		},
		{
			name:  "nested structure",
			input: map[string]interface{}{"outer": map[string]int{"inner": 42}},
		},
		{
			name:  "array",
			input: []int{1, 2, 3, 4, 5},
		},
		{
			name:  "string",
			input: "simple string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := PrettyPrint(tt.input)
			if len(result) == 0 {
				t.Error("PrettyPrint returned empty string")
			}
		})
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if keypair == nil {
		t.Fatal("GeneratePemKeypair returned nil")
	}

	// Check private key format
	if len(keypair.Private) == 0 {
		t.Error("Private key is empty")
	}
	if !contains(keypair.Private, "BEGIN RSA PRIVATE KEY") {
		t.Error("Private key doesn't have PEM header")
	}
	if !contains(keypair.Private, "END RSA PRIVATE KEY") {
		t.Error("Private key doesn't have PEM footer")
	}

	// The public key must be PKIX encoded; remote servers reject the
	// PKCS1 form in publicKeyPem.
	if len(keypair.Public) == 0 {
		t.Error("Public key is empty")
	}
	if !contains(keypair.Public, "BEGIN PUBLIC KEY") {
		t.Error("Public key doesn't have PEM header")
	}
	if !contains(keypair.Public, "END PUBLIC KEY") {
		t.Error("Public key doesn't have PEM footer")
	}

	block, _ := pem.Decode([]byte(keypair.Public))
	if block == nil {
		t.Fatal("Public key is not valid PEM")
	}
	if _, err := x509.ParsePKIXPublicKey(block.Bytes); err != nil {
		t.Errorf("Public key is not PKIX encoded: %v", err)
	}

	privBlock, _ := pem.Decode([]byte(keypair.Private))
	if privBlock == nil {
		t.Fatal("Private key is not valid PEM")
	}
	if _, err := x509.ParsePKCS1PrivateKey(privBlock.Bytes); err != nil {
		t.Errorf("Private key is not PKCS1 encoded: %v", err)
	}
}

func TestGeneratePemKeypairUniqueness(t *testing.T) {
	// Generate two keypairs and verify they're different
	keypair1 := GeneratePemKeypair()
	keypair2 := GeneratePemKeypair()

	if keypair1.Private == keypair2.Private {
		t.Error("Generated keypairs should be different")
	}
	if keypair1.Public == keypair2.Public {
		t.Error("Generated public keys should be different")
	}
}

func contains(s, substr string) bool {
	return len(s) > 0 && len(substr) > 0 && len(s) >= len(substr) &&
		(s == substr || len(s) > len(substr) && containsHelper(s, substr))
}

func containsHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
