package service

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"identity-service/internal/model"
)

const DefaultTokenTTL = time.Hour

var ErrUnsupportedClaim = errors.New("unsupported claim value")

// TokenCodec signs and verifies session tokens with the shared secret.
type TokenCodec struct {
	secret     []byte
	method     jwt.SigningMethod
	defaultTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

func NewTokenCodec(secret string, algorithm string, defaultTTL time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}

	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	if defaultTTL <= 0 {
		defaultTTL = DefaultTokenTTL
	}

	return &TokenCodec{
		secret:     []byte(secret),
		method:     method,
		defaultTTL: defaultTTL,
		now:        time.Now,
		// Expiry is checked by hand after the signature so that a token is
		// only valid while now is strictly before exp.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{method.Alg()}), jwt.WithoutClaimsValidation()),
	}, nil
}

// WithClock replaces the time source. Used by tests.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Issue signs claims with iat/exp stamped in. A non-positive ttl falls back
// to the codec default.
func (c *TokenCodec) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	normalized := make(jwt.MapClaims, len(claims)+2)
	for key, value := range claims {
		v, err := normalizeClaim(value)
		if err != nil {
			return "", fmt.Errorf("claim %q: %w", key, err)
		}
		normalized[key] = v
	}

	now := c.now().UTC()
	normalized["iat"] = now.Unix()
	normalized["exp"] = now.Add(ttl).Unix()

	return jwt.NewWithClaims(c.method, normalized).SignedString(c.secret)
}

// Verify checks the signature, then expiry, then the identity claims.
func (c *TokenCodec) Verify(token string) (model.Identity, error) {
	parsed, err := c.parser.Parse(token, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.Identity{}, model.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return model.Identity{}, model.ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return model.Identity{}, model.ErrInvalidToken
	}
	if exp != nil && !c.now().Before(exp.Time) {
		return model.Identity{}, model.ErrTokenExpired
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" || role == "" {
		return model.Identity{}, model.ErrInvalidToken
	}

	return model.Identity{Email: email, Role: role}, nil
}

// normalizeClaim reduces a claim value to strings, numbers, booleans and
// nested maps or slices of those.
func normalizeClaim(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case time.Time:
		return v.Unix(), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			n, err := normalizeClaim(item)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := normalizeClaim(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			n, err := normalizeClaim(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := normalizeClaim(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = n
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %T", ErrUnsupportedClaim, value)
}
