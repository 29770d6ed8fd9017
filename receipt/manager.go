package receipt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the receipt signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC-SHA256 secret.
	MethodHS256 SigningMethod = "hs256"
)

// Config configures a Manager. PrivateKey may be omitted for a verify-only
// Ed25519 manager.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager signs and parses verification receipts.
type Manager struct {
	config Config
}

// Claims is the payload of a verification receipt. Subject carries the
// principal and ID (jti) is unique per receipt.
type Claims struct {
	Factor      string `json:"fct"`
	ChallengeID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the subject the receipt was issued for.
func (c *Claims) Principal() string {
	return c.Subject
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// Issue signs a receipt attesting that principal satisfied factor through
// challengeID (empty for backup codes).
func (m *Manager) Issue(principal, factor, challengeID string) (string, error) {
	if principal == "" || factor == "" {
		return "", errors.New("receipt requires principal and factor")
	}

	now := m.config.Now()
	claims := Claims{
		Factor:      factor,
		ChallengeID: challengeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// Parse verifies tokenStr and returns its claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(m.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := m.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return m.keyBytesToVerifyKey(key)
		}

		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return m.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" || claims.Factor == "" {
		return nil, errors.New("receipt missing subject or factor")
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("receipt iat too far in the future")
	}

	return claims, nil
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
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
