package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	token, err := Issue("staff-1", "admin", "kidcheck", "secret", time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token.Value == "" {
		t.Fatal("empty token")
	}
	claims, err := Parse(token.Value, "secret", "kidcheck")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.StaffID != "staff-1" {
		t.Errorf("StaffID = %q, want staff-1", claims.StaffID)
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, want admin", claims.Role)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, err := Issue("staff-1", "staff", "kidcheck", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token.Value, "other-secret", "kidcheck"); err == nil {
		t.Fatal("Parse accepted a token signed with a different key")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, err := Issue("staff-1", "staff", "someone-else", "secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token.Value, "secret", "kidcheck"); err == nil {
		t.Fatal("Parse accepted a token from a different issuer")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := Issue("staff-1", "staff", "kidcheck", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(token.Value, "secret", "kidcheck"); err == nil {
		t.Fatal("Parse accepted an expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("password stored unhashed")
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}
