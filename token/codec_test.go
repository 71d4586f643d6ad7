package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	codec, err := NewCodec(Config{
		SigningMethod:   MethodEd25519,
		PrivateKey:      priv,
		PublicKey:       pub,
		Issuer:          "tokenwell-test",
		AccessTTL:       15 * time.Minute,
		RefreshTTL:      45 * 24 * time.Hour,
		GuestRefreshTTL: 7 * 24 * time.Hour,
		Leeway:          time.Minute,
	})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return codec
}

func TestAccessRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	authTime := time.Now().Add(-30 * time.Second)

	signed, ttl, err := codec.MintAccess("user-1", "u@example.com", []string{"admin"}, authTime)
	if err != nil {
		t.Fatalf("mint access: %v", err)
	}
	if ttl != int((15 * time.Minute).Seconds()) {
		t.Fatalf("access ttl = %d", ttl)
	}

	claims, err := codec.Verify(signed, TypeAccess)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "u@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if claims.AuthTime != authTime.Unix() {
		t.Fatalf("auth_time = %d, want %d", claims.AuthTime, authTime.Unix())
	}
	if claims.ID == "" {
		t.Fatal("missing jti")
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	signed, ttl, err := codec.MintRefresh("user-1", "sid-1", "fid-1", false, time.Now())
	if err != nil {
		t.Fatalf("mint refresh: %v", err)
	}
	if ttl != int((45 * 24 * time.Hour).Seconds()) {
		t.Fatalf("refresh ttl = %d", ttl)
	}

	claims, err := codec.Verify(signed, TypeRefresh)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.SessionID != "sid-1" || claims.FamilyID != "fid-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Guest {
		t.Fatal("unexpected guest flag")
	}
}

func TestJTIUniqueAcrossMints(t *testing.T) {
	codec := newTestCodec(t)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		signed, _, err := codec.MintRefresh("user-1", "sid-1", "fid-1", false, time.Now())
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		jti := codec.ExtractJTI(signed)
		if jti == "" {
			t.Fatal("empty jti")
		}
		if seen[jti] {
			t.Fatalf("duplicate jti %q", jti)
		}
		seen[jti] = true
	}
}

func TestVerifyWrongType(t *testing.T) {
	codec := newTestCodec(t)

	access, _, err := codec.MintAccess("user-1", "", nil, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := codec.Verify(access, TypeRefresh); !errors.Is(err, ErrWrongType) {
		t.Fatalf("err = %v, want ErrWrongType", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	codec := newTestCodec(t)

	// Sign a token that expired well past the leeway window.
	claims := Claims{
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-expired",
			Subject:   "user-1",
			Issuer:    "tokenwell-test",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(codec.signKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := codec.Verify(signed, TypeAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	codec := newTestCodec(t)

	signed, _, err := codec.MintAccess("user-1", "", nil, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := codec.Verify(tampered, TypeAccess); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestVerifyGarbageNeverPanics(t *testing.T) {
	codec := newTestCodec(t)

	inputs := []string{"", ".", "..", "a.b.c", strings.Repeat("x", 4096), "\x00\x01\x02"}
	for _, in := range inputs {
		if _, err := codec.Verify(in, TypeAccess); err == nil {
			t.Fatalf("verify(%q) unexpectedly succeeded", in)
		}
		if got := codec.ExtractJTI(in); got != "" {
			t.Fatalf("ExtractJTI(%q) = %q", in, got)
		}
		if got := codec.ExtractUserID(in); got != "" {
			t.Fatalf("ExtractUserID(%q) = %q", in, got)
		}
	}
}

func TestExtractorsSkipSignature(t *testing.T) {
	codec := newTestCodec(t)

	signed, _, err := codec.MintRefresh("user-9", "sid-9", "fid-9", true, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if got := codec.ExtractUserID(signed); got != "user-9" {
		t.Fatalf("ExtractUserID = %q", got)
	}
	if got := codec.ExtractJTI(signed); got == "" {
		t.Fatal("empty jti")
	}
}

func TestGuestTTLStrictlyShorter(t *testing.T) {
	codec := newTestCodec(t)

	if codec.RefreshTTL(true) >= codec.RefreshTTL(false) {
		t.Fatalf("guest ttl %v not shorter than %v", codec.RefreshTTL(true), codec.RefreshTTL(false))
	}

	_, guestTTL, err := codec.MintRefresh("user-1", "sid-1", "fid-1", true, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, userTTL, err := codec.MintRefresh("user-1", "sid-1", "fid-1", false, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if guestTTL >= userTTL {
		t.Fatalf("guest ttl %d not shorter than %d", guestTTL, userTTL)
	}
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	base := Config{
		SigningMethod:   MethodEd25519,
		PrivateKey:      priv,
		PublicKey:       pub,
		AccessTTL:       time.Minute,
		RefreshTTL:      time.Hour,
		GuestRefreshTTL: 30 * time.Minute,
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero access ttl", func(c *Config) { c.AccessTTL = 0 }},
		{"guest ttl not shorter", func(c *Config) { c.GuestRefreshTTL = c.RefreshTTL }},
		{"excessive leeway", func(c *Config) { c.Leeway = 5 * time.Minute }},
		{"short hmac secret", func(c *Config) {
			c.SigningMethod = MethodHS256
			c.PrivateKey = []byte("short")
		}},
		{"bad ed25519 key", func(c *Config) { c.PrivateKey = []byte("not a key") }},
		{"unknown method", func(c *Config) { c.SigningMethod = "rs512" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if _, err := NewCodec(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("token-a")
	if a != HashToken("token-a") {
		t.Fatal("hash not deterministic")
	}
	if a == HashToken("token-b") {
		t.Fatal("distinct tokens collided")
	}
}
