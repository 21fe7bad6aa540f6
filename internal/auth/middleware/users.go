package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-results/internal/rbac"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUserNotFound       = errors.New("user not found")
	ErrLastAdmin          = errors.New("cannot demote the last admin")
)

const bcryptCost = 12

// Users authenticates against the users table, plus one admin account from configuration.
type Users struct {
	db        *sql.DB
	adminUser string
	adminHash string
}

func NewUsers(db *sql.DB, adminUser, adminPassHash string) *Users {
	return &Users{db: db, adminUser: adminUser, adminHash: adminPassHash}
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASS_HASH or the users table.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Authenticate returns the token subject and role for a username/password pair.
func (u *Users) Authenticate(ctx context.Context, username, password string) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", "", ErrInvalidCredentials
	}
	if u.adminHash != "" && username == u.adminUser {
		if bcrypt.CompareHashAndPassword([]byte(u.adminHash), []byte(password)) != nil {
			return "", "", ErrInvalidCredentials
		}
		return username, rbac.RoleAdmin, nil
	}
	if u.db == nil {
		return "", "", ErrInvalidCredentials
	}
	var id, role, hash string
	err := u.db.QueryRowContext(ctx, `SELECT id, role, password_hash FROM users WHERE username=$1`, username).
		Scan(&id, &role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrInvalidCredentials
	}
	if err != nil {
		return "", "", fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", "", ErrInvalidCredentials
	}
	return id, role, nil
}

// Role returns the stored role for a token subject. ok is false if the subject is unknown.
func (u *Users) Role(ctx context.Context, sub string) (role string, ok bool, err error) {
	if sub == u.adminUser && u.adminHash != "" {
		return rbac.RoleAdmin, true, nil
	}
	if u.db == nil {
		return "", false, nil
	}
	err = u.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

type UserRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Upsert creates or updates a user by username. An empty password keeps the stored hash.
func (u *Users) Upsert(ctx context.Context, username, role, password string) (UserRow, error) {
	if !rbac.KnownRole(role) {
		return UserRow{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	var id string
	err := u.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username=$1`, username).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if password == "" {
			return UserRow{}, fmt.Errorf("new user %s needs a password", username)
		}
		hash, err := HashPassword(password)
		if err != nil {
			return UserRow{}, err
		}
		id = uuid.NewString()
		_, err = u.db.ExecContext(ctx, `INSERT INTO users (id, username, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5)`,
			id, username, role, hash, time.Now().Unix())
		if err != nil {
			return UserRow{}, err
		}
	case err != nil:
		return UserRow{}, err
	case password != "":
		hash, err := HashPassword(password)
		if err != nil {
			return UserRow{}, err
		}
		if _, err := u.db.ExecContext(ctx, `UPDATE users SET role=$1, password_hash=$2 WHERE id=$3`, role, hash, id); err != nil {
			return UserRow{}, err
		}
	default:
		if _, err := u.db.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, id); err != nil {
			return UserRow{}, err
		}
	}
	return UserRow{ID: id, Username: username, Role: role}, nil
}

func (u *Users) List(ctx context.Context) ([]UserRow, error) {
	rows, err := u.db.QueryContext(ctx, `SELECT id, username, role FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []UserRow{}
	for rows.Next() {
		var r UserRow
		if err := rows.Scan(&r.ID, &r.Username, &r.Role); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChangePassword replaces the password of a stored user after checking the old one.
// The configured admin account has no row and cannot be changed here.
func (u *Users) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	if newPassword == "" {
		return errors.New("new password required")
	}
	var stored string
	err := u.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = u.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
	return err
}

// SetRole changes the role of the user identified by id or username. The last stored admin
// cannot be demoted.
func (u *Users) SetRole(ctx context.Context, target, role string) (UserRow, error) {
	if !rbac.KnownRole(role) {
		return UserRow{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	var row UserRow
	err := u.db.QueryRowContext(ctx, `SELECT id, username, role FROM users WHERE id=$1 OR username=$1`, target).
		Scan(&row.ID, &row.Username, &row.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRow{}, ErrUserNotFound
	}
	if err != nil {
		return UserRow{}, err
	}
	if row.Role == rbac.RoleAdmin && role != rbac.RoleAdmin {
		var admins int
		if err := u.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role=$1`, rbac.RoleAdmin).Scan(&admins); err != nil {
			return UserRow{}, err
		}
		if admins <= 1 {
			return UserRow{}, ErrLastAdmin
		}
	}
	if _, err := u.db.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, row.ID); err != nil {
		return UserRow{}, err
	}
	row.Role = role
	return row, nil
}
