package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func sign(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestVerify(t *testing.T) {
	key, pub := keyPair(t)
	other, _ := keyPair(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)
	user := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	actor, err := v.Verify(sign(t, key, jwt.MapClaims{"sub": user.String(), "role": "organizer", "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{UserID: user, Role: domain.RoleOrganizer}, actor)

	actor, err = v.Verify(sign(t, key, jwt.MapClaims{"user_id": user.String(), "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, actor.Role)

	rejects := map[string]string{
		"wrong key":    sign(t, other, jwt.MapClaims{"sub": user.String(), "exp": exp}),
		"expired":      sign(t, key, jwt.MapClaims{"sub": user.String(), "exp": time.Now().Add(-time.Minute).Unix()}),
		"no expiry":    sign(t, key, jwt.MapClaims{"sub": user.String()}),
		"bad subject":  sign(t, key, jwt.MapClaims{"sub": "alice", "exp": exp}),
		"unknown role": sign(t, key, jwt.MapClaims{"sub": user.String(), "role": "root", "exp": exp}),
		"garbage":      "not.a.token",
	}
	for name, token := range rejects {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.True(t, errors.Is(err, domain.ErrUnauthenticated), "got %v", err)
		})
	}
}

func TestVerifyRejectsHMAC(t *testing.T) {
	_, pub := keyPair(t)
	v, err := NewVerifier(pub)
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(pub)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.True(t, errors.Is(err, domain.ErrUnauthenticated))
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}
