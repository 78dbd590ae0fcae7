package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// KeyPair is an asymmetric signing key with its published identifier.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.Signer
	Algorithm  string // RS256 or ES256
}

// JWKS is the document served at the jwks endpoint.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a KeyPair.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateRSAKeyPair] GenerateKey")
	}
	return newKeyPair(privateKey)
}

func GenerateECDSAKeyPair() (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateECDSAKeyPair] GenerateKey")
	}
	return newKeyPair(privateKey)
}

// ParseKeyPairPEM reads a PKCS#1, PKCS#8 or SEC 1 private key.
func ParseKeyPairPEM(pemData string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("[ParseKeyPairPEM] no PEM block found")
	}

	var key any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[ParseKeyPairPEM] parse %s", block.Type)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.Errorf("[ParseKeyPairPEM] unsupported key type %T", key)
	}
	return newKeyPair(signer)
}

func newKeyPair(key crypto.Signer) (*KeyPair, error) {
	kp := &KeyPair{PrivateKey: key}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		kp.Algorithm = "RS256"
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, errors.New("only P-256 ECDSA keys are supported")
		}
		kp.Algorithm = "ES256"
	default:
		return nil, errors.Errorf("unsupported key type %T", key)
	}

	jwk, err := kp.ToJWK()
	if err != nil {
		return nil, err
	}
	if kp.KeyID, err = jwk.Thumbprint(); err != nil {
		return nil, err
	}
	return kp, nil
}

func (kp *KeyPair) PublicKey() crypto.PublicKey {
	return kp.PrivateKey.Public()
}

func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	if kp.Algorithm == "ES256" {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodRS256
}

// ExportPrivateKeyPEM encodes the private key as PKCS#8.
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPair.ExportPrivateKeyPEM] MarshalPKCS8PrivateKey")
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{Kid: kp.KeyID, Use: "sig", Alg: kp.Algorithm}

	switch pub := kp.PublicKey().(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	case *ecdsa.PublicKey:
		jwk.Kty = "EC"
		jwk.Crv = "P-256"
		jwk.X = base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, 32)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, 32)))
	default:
		return nil, errors.Errorf("unsupported public key type %T", pub)
	}
	return jwk, nil
}

// Thumbprint is the RFC 7638 SHA-256 thumbprint, used as the key id.
func (j *JWK) Thumbprint() (string, error) {
	var members any
	switch j.Kty {
	case "RSA":
		members = struct {
			E   string `json:"e"`
			Kty string `json:"kty"`
			N   string `json:"n"`
		}{j.E, j.Kty, j.N}
	case "EC":
		members = struct {
			Crv string `json:"crv"`
			Kty string `json:"kty"`
			X   string `json:"x"`
			Y   string `json:"y"`
		}{j.Crv, j.Kty, j.X, j.Y}
	default:
		return "", errors.Errorf("unsupported key type %q", j.Kty)
	}

	data, err := json.Marshal(members)
	if err != nil {
		return "", errors.Wrap(err, "[JWK.Thumbprint] Marshal")
	}
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
