package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ironsheep/carnet-tools/internal/common"
	"github.com/ironsheep/carnet-tools/internal/dbx"
)

// Roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const saltLen = 16

// UserRecord is an account of the desktop collaborator.
type UserRecord struct {
	ID           int64
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Username    string `validate:"required,min=3"`
	Email       string `validate:"required,email"`
	DisplayName string
	Password    string `validate:"required,min=6"`
	Role        string `validate:"oneof=admin user"`
}

// HashPassword returns "<hex sha256(salt||password)>:<hex salt>".
func HashPassword(password string, salt []byte) string {
	sum := sha256.Sum256(append(append([]byte{}, salt...), password...))
	return hex.EncodeToString(sum[:]) + ":" + hex.EncodeToString(salt)
}

// VerifyPassword checks password against a stored hash.
func VerifyPassword(stored, password string) bool {
	digest, saltHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want := HashPassword(password, salt)
	wantDigest, _, _ := strings.Cut(want, ":")
	return subtle.ConstantTimeCompare([]byte(digest), []byte(wantDigest)) == 1
}

// CreateUser stores a new account. It returns false when the username or
// email is taken.
func (s *Store) CreateUser(ctx context.Context, u NewUser) (bool, error) {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if err := validate.Struct(u); err != nil {
		return false, fmt.Errorf("%w: invalid user: %w", common.ErrFormat, err)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return false, fmt.Errorf("salt: %w", err)
	}

	_, err := dbx.ExecOne(ctx, s.db, `
		INSERT INTO usuarios (username, email, nombre_completo, password_hash, rol, fecha_creacion)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, strings.ToLower(u.Email), u.DisplayName, HashPassword(u.Password, salt), u.Role, timestamp(s.now()))
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return false, nil
		}
		return false, storageErr("create user", err)
	}
	return true, nil
}

// UserByUsername returns the account or common.ErrNotFound.
func (s *Store) UserByUsername(ctx context.Context, username string) (UserRecord, error) {
	var (
		u       UserRecord
		display sql.NullString
		created any
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, nombre_completo, password_hash, rol, fecha_creacion
		FROM usuarios WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &u.Email, &display, &u.PasswordHash, &u.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, common.ErrNotFound
	}
	if err != nil {
		return UserRecord{}, storageErr("get user", err)
	}
	u.DisplayName = display.String
	u.CreatedAt = parseTime(created)
	return u, nil
}

// CheckPassword reports whether password matches the stored hash of username.
// An unknown user is a mismatch, not an error.
func (s *Store) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	u, err := s.UserByUsername(ctx, username)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return VerifyPassword(u.PasswordHash, password), nil
}
