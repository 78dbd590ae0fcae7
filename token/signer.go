package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs and verifies the JWTs minted by the Manager.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	// Keyfunc resolves the verification key and rejects unexpected algorithms.
	Keyfunc(token *jwt.Token) (any, error)
	Method() jwt.SigningMethod
}

// HMACSigner signs with a shared secret. It cannot publish a JWKS.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign] SignedString")
	}
	return signed, nil
}

func (h *HMACSigner) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA key and sets the kid header.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (k *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(k.keyPair.SigningMethod(), claims)
	token.Header["kid"] = k.keyPair.KeyID

	signed, err := token.SignedString(k.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign] SignedString")
	}
	return signed, nil
}

func (k *KeyPairSigner) Keyfunc(token *jwt.Token) (any, error) {
	if token.Method.Alg() != k.keyPair.SigningMethod().Alg() {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != k.keyPair.KeyID {
		return nil, errors.Errorf("unknown key id %q", kid)
	}
	return k.keyPair.PublicKey(), nil
}

func (k *KeyPairSigner) Method() jwt.SigningMethod {
	return k.keyPair.SigningMethod()
}

func (k *KeyPairSigner) KeyPair() *KeyPair {
	return k.keyPair
}

func (k *KeyPairSigner) JWKS() (*JWKS, error) {
	jwk, err := k.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPairSigner.JWKS] ToJWK")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

var (
	_ Signer = (*HMACSigner)(nil)
	_ Signer = (*KeyPairSigner)(nil)
)
