package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/community-resource-hub/internal/model"
	"github.com/iliyamo/community-resource-hub/internal/utils"
)

// UserRepo provides access to the users table. Usernames are the identity
// key for presence, routing and the ledger, so every method normalizes its
// username argument to lowercase before touching the database.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,role,is_online,last_seen_at,is_active,created_at,updated_at"

// NormalizeUsername lowercases and trims a handle. All identity keys pass
// through here exactly once, at the edge.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Create inserts a user and returns its ID. The duplicate-key error from
// MySQL (1062) is mapped onto ErrUsernameExists or ErrEmailExists depending
// on which unique index rejected the row.
func (r *UserRepo) Create(ctx context.Context, username, email, password, role string, cost int) (uint64, error) {
	username = NormalizeUsername(username)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, role) VALUES (?,?,?,?)",
		username, email, hash, role)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "1062") {
			if strings.Contains(msg, "username") {
				return 0, ErrUsernameExists
			}
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByUsername fetches a user by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1",
		NormalizeUsername(username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var (
		u        model.User
		lastSeen sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.IsOnline, &lastSeen, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeenAt = &t
	}
	return u, nil
}

// Exists reports whether an active user with the username exists.
func (r *UserRepo) Exists(ctx context.Context, username string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE username=? AND is_active=1 LIMIT 1",
		NormalizeUsername(username)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetOnline marks the user online in the durable record. Called by the
// websocket handler on the first authenticated connection so that the
// persisted status roughly mirrors the in-memory registry.
func (r *UserRepo) SetOnline(ctx context.Context, username string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_online=1 WHERE username=?",
		NormalizeUsername(username))
	return err
}

// SetOffline is the presence registry's terminal write-through: it records
// the offline status and last-seen time so they survive a process restart.
func (r *UserRepo) SetOffline(ctx context.Context, username string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_online=0, last_seen_at=? WHERE username=?",
		at, NormalizeUsername(username))
	return err
}
