package model

import "time"

// User represents an application user record as stored in the
// `users` table. The username doubles as the identity key for
// presence tracking, notification routing and the resource ledger;
// it is case-normalized (lowercase) before it is written and every
// lookup normalizes its argument the same way.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique, lowercased handle; the identity key.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – name of the role (MEMBER or ADMIN).
//  IsOnline     – last persisted presence status; maintained by the
//                 presence registry's offline write-through so the
//                 value survives a process restart.
//  LastSeenAt   – when the user last went offline (null while online
//                 or never connected).
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64     // users.id
	Username     string     // users.username
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Role         string     // users.role
	IsOnline     bool       // users.is_online
	LastSeenAt   *time.Time // users.last_seen_at (nullable)
	IsActive     bool       // users.is_active
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA-256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
