package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r-secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Sup3r-secret" {
		t.Fatalf("hash must not equal plaintext")
	}
	if err := VerifyPassword(hash, "Sup3r-secret"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "Sup3r-wrong!"); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword("", bcrypt.MinCost); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"Aa1!aaaa", true},
		{"Str0ng-enough", true},
		{"short1!", false},      // below minimum length
		{"alllower1!", false},   // no uppercase
		{"ALLUPPER1!", false},   // no lowercase
		{"NoDigits!!", false},   // no digit
		{"NoSymbol123A", false}, // no symbol
		{"", false},
	}
	for _, tc := range cases {
		err := ValidatePasswordPolicy(tc.password)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.password, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q: expected policy violation", tc.password)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("%q: policy error should wrap ErrInvalidInput, got %v", tc.password, err)
			}
		}
	}
}
