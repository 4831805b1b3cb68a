package auth

import (
	"testing"
	"time"
)

func TestMintAndParse(t *testing.T) {
	tok, err := MintToken("oncall@example.com", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	c, err := ParseClaims(tok, "s3cret")
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if c.Operator != "oncall@example.com" || c.Subject != "oncall@example.com" {
		t.Errorf("unexpected claims %+v", c)
	}
}

func TestParseClaimsRejects(t *testing.T) {
	valid, _ := MintToken("ops", "s3cret", time.Hour)
	expired, _ := MintToken("ops", "s3cret", -time.Minute)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other"},
		{"expired", expired, "s3cret"},
		{"garbage", "not.a.token", "s3cret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseClaims(tt.token, tt.secret); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMintTokenRequiresOperator(t *testing.T) {
	if _, err := MintToken("", "s3cret", time.Hour); err == nil {
		t.Error("expected error for empty operator")
	}
	if _, err := MintToken("ops", "", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}
