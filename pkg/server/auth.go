package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/crystal-mush/gridscript/pkg/crypt"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by Login for an unknown author or a
// wrong password. The two are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims holds the JWT claims for an authenticated author session.
type Claims struct {
	Author string `json:"author"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// AuthService provides JWT-based authentication bound to author accounts.
type AuthService struct {
	store  *boltstore.Store
	jwtKey []byte
	expiry time.Duration
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated.
func NewAuthService(store *boltstore.Store, jwtSecret string, expirySeconds int) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	return &AuthService{
		store:  store,
		jwtKey: key,
		expiry: expiry,
	}
}

// Login authenticates an author and returns a JWT token. A legacy DES hash
// is replaced with bcrypt on success.
func (a *AuthService) Login(name, password string) (string, error) {
	if a.store == nil {
		return "", ErrInvalidCredentials
	}
	author, err := a.store.GetAuthor(name)
	if err != nil {
		if !errors.Is(err, boltstore.ErrNotFound) {
			log.Printf("auth: loading author %q: %v", name, err)
		}
		return "", ErrInvalidCredentials
	}
	if !crypt.CheckPassword(password, author.PassHash) {
		return "", ErrInvalidCredentials
	}

	if crypt.IsLegacy(author.PassHash) {
		if hash, err := crypt.HashPassword(password); err == nil {
			author.PassHash = hash
			log.Printf("auth: upgraded legacy password hash for %s", author.Name)
		}
	}
	author.LastLogin = time.Now().UTC()
	if err := a.store.PutAuthor(author); err != nil {
		log.Printf("auth: saving author %s: %v", author.Name, err)
	}

	return a.sign(author.Name, author.Admin)
}

func (a *AuthService) sign(name string, admin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		Author: name,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "gridscript",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// ValidateToken parses and validates a JWT token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Author == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// RefreshToken creates a new token with a fresh expiry for an existing valid token.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.expiry))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtKey)
}

// SetPassword creates the author if needed and stores a bcrypt hash of
// password. An existing author keeps its admin flag unless admin is set.
func (a *AuthService) SetPassword(name, password string, admin bool) error {
	if a.store == nil {
		return fmt.Errorf("auth: no author store")
	}
	if name == "" || password == "" {
		return fmt.Errorf("auth: name and password required")
	}
	author, err := a.store.GetAuthor(name)
	if errors.Is(err, boltstore.ErrNotFound) {
		author = &boltstore.Author{Name: name}
	} else if err != nil {
		return err
	}
	hash, err := crypt.HashPassword(password)
	if err != nil {
		return fmt.Errorf("auth: hashing password: %w", err)
	}
	author.PassHash = hash
	author.Admin = author.Admin || admin
	return a.store.PutAuthor(author)
}

// GenerateJWTSecret generates a random hex-encoded secret suitable for jwt_secret config.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
