package token

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs tokens with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs tokens with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

const (
	// TypeAccess marks short-lived bearer tokens.
	TypeAccess = "access"
	// TypeRefresh marks rotation-bound refresh tokens.
	TypeRefresh = "refresh"
)

var (
	// ErrInvalid reports a token that failed signature, structure, or claim
	// checks. Callers should treat it as a plain rejection, not an incident.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired reports a token past its expiry (leeway already applied).
	ErrExpired = errors.New("token expired")
	// ErrWrongType reports a structurally valid token presented at the wrong
	// boundary, e.g. an access token sent to refresh.
	ErrWrongType = errors.New("token type mismatch")
)

// Config holds the signing material and lifetimes for a Codec. All
// misconfiguration is rejected by NewCodec; Mint and Verify never fail on
// configuration.
type Config struct {
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256 or the raw/PEM Ed25519
	// private key for ed25519.
	PrivateKey []byte
	// PublicKey is required for ed25519 verification; ignored for hs256.
	PublicKey []byte
	Issuer    string
	Audience  string

	AccessTTL time.Duration
	// RefreshTTL is the refresh lifetime for registered users.
	RefreshTTL time.Duration
	// GuestRefreshTTL is the refresh lifetime for guest principals. It must
	// be strictly shorter than RefreshTTL.
	GuestRefreshTTL time.Duration
	// Leeway absorbs clock skew during expiry checks. Capped at two minutes.
	Leeway time.Duration
}

// Claims is the payload carried by both token types. Access tokens populate
// Email/Roles/AuthTime; refresh tokens populate SessionID/FamilyID/Guest.
type Claims struct {
	TokenType string   `json:"typ"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	FamilyID  string   `json:"fid,omitempty"`
	Guest     bool     `json:"gst,omitempty"`
	AuthTime  int64    `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// Codec mints and verifies the signed token pair. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	config  Config
	signKey any
}

// NewCodec validates cfg and returns a ready Codec. Key material problems
// surface here, at startup, never per call.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.GuestRefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.GuestRefreshTTL >= cfg.RefreshTTL {
		return nil, errors.New("guest refresh TTL must be shorter than refresh TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	var signKey any
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		signKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		signKey = priv
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Codec{config: cfg, signKey: signKey}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL reports the refresh lifetime applied to a principal class.
func (c *Codec) RefreshTTL(guest bool) time.Duration {
	if guest {
		return c.config.GuestRefreshTTL
	}
	return c.config.RefreshTTL
}

// MintAccess signs a short-lived access token for userID. authTime records
// when the credentials were last proven, which survives refreshes unchanged.
// The returned int is the token lifetime in whole seconds.
func (c *Codec) MintAccess(userID, email string, roles []string, authTime time.Time) (string, int, error) {
	now := time.Now()
	claims := Claims{
		TokenType: TypeAccess,
		Email:     email,
		Roles:     roles,
		AuthTime:  authTime.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.AccessTTL)),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(c.signKey)
	if err != nil {
		return "", 0, err
	}
	return signed, int(c.config.AccessTTL / time.Second), nil
}

// MintRefresh signs a refresh token bound to a session row and its rotation
// family. Guest principals receive the shorter guest lifetime. authTime is
// carried through so rotated access tokens keep the original proof instant.
func (c *Codec) MintRefresh(userID, sessionID, familyID string, guest bool, authTime time.Time) (string, int, error) {
	ttl := c.RefreshTTL(guest)
	now := time.Now()
	claims := Claims{
		TokenType: TypeRefresh,
		SessionID: sessionID,
		FamilyID:  familyID,
		Guest:     guest,
		AuthTime:  authTime.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    c.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(c.method(), claims).SignedString(c.signKey)
	if err != nil {
		return "", 0, err
	}
	return signed, int(ttl / time.Second), nil
}

// Verify checks signature, expiry (with leeway), issuer, and token type.
// It returns ErrExpired, ErrWrongType, or ErrInvalid on rejection and never
// panics on attacker-supplied input.
func (c *Codec) Verify(tokenStr, wantType string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongType
	}
	if wantType == TypeRefresh && (claims.SessionID == "" || claims.FamilyID == "") {
		return nil, ErrInvalid
	}

	return claims, nil
}

// ExtractJTI returns the token's jti claim without verifying the signature,
// or "" when the token does not parse. Intended for log correlation only;
// never make authorization decisions on its output.
func (c *Codec) ExtractJTI(tokenStr string) string {
	claims := unverifiedClaims(tokenStr)
	if claims == nil {
		return ""
	}
	return claims.ID
}

// ExtractUserID returns the token's subject without verifying the signature,
// or "" when the token does not parse. Same caveat as ExtractJTI.
func (c *Codec) ExtractUserID(tokenStr string) string {
	claims := unverifiedClaims(tokenStr)
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func unverifiedClaims(tokenStr string) *Claims {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return nil
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// HashToken returns the SHA-256 digest of the encoded token. The digest is
// the only token-derived value the session store ever persists.
func HashToken(tokenStr string) [32]byte {
	return sha256.Sum256([]byte(tokenStr))
}

func (c *Codec) method() jwt.SigningMethod {
	if c.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (c *Codec) verifyKey() (any, error) {
	if c.config.SigningMethod == MethodHS256 {
		return c.config.PrivateKey, nil
	}
	return parseEdPublicKey(c.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
