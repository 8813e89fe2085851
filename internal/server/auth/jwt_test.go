package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("dr-a", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	got, err := GetUserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetUserIDFromToken error: %v", err)
	}
	if got != "dr-a" {
		t.Fatalf("userID mismatch: got %q want %q", got, "dr-a")
	}
}

func TestGetUserIDFromToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	tok, err := GenerateToken("dr-a", secret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetUserIDFromToken(tok, secret)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestGetUserIDFromToken_Invalid(t *testing.T) {
	t.Parallel()

	good, err := GenerateToken("dr-a", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "dr-a"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("right-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		UserID:           "dr-a",
	}).SignedString([]byte("right-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := map[string]string{
		"wrong secret": good,
		"garbage":      "not-a-token",
		"alg none":     none,
		"no user id":   noUser,
		"wrong issuer": foreign,
	}
	for name, tok := range cases {
		secret := []byte("right-secret")
		if name == "wrong secret" {
			secret = []byte("wrong-secret")
		}
		if _, err := GetUserIDFromToken(tok, secret); !errors.Is(err, common.ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestActorContext(t *testing.T) {
	t.Parallel()

	if _, err := ActorFromContext(context.Background()); !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized, got %v", err)
	}
	if _, err := ActorFromContext(WithActor(context.Background(), "")); !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("expected ErrorUnauthorized for empty id, got %v", err)
	}

	id, err := ActorFromContext(WithActor(context.Background(), "dr-b"))
	if err != nil || id != "dr-b" {
		t.Fatalf("ActorFromContext = %q, %v", id, err)
	}
}
