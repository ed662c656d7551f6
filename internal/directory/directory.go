package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	pkgerrors "bizpulse/pkg/errors"
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// maxChainDepth bounds manager-chain walks so a cycle in manager_id cannot loop.
const maxChainDepth = 16

// User is a potential alert recipient.
type User struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	ManagerID       *int64     `json:"manager_id,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

func (u User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

type Directory interface {
	User(ctx context.Context, id int64) (*User, error)
	ByRoles(ctx context.Context, roles ...string) ([]User, error)
	// ManagerChain returns the managers above userID, nearest first.
	ManagerChain(ctx context.Context, userID int64) ([]User, error)
}

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const (
	userColumns       = `id, name, email, role, manager_id, email_verified_at`
	joinedUserColumns = `u.id, u.name, u.email, u.role, u.manager_id, u.email_verified_at`
)

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var (
		u         User
		managerID sql.NullInt64
		verified  sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &managerID, &verified); err != nil {
		return User{}, err
	}
	if managerID.Valid {
		id := managerID.Int64
		u.ManagerID = &id
	}
	if verified.Valid {
		t := verified.Time
		u.EmailVerifiedAt = &t
	}
	return u, nil
}

func (d *PostgresDirectory) User(ctx context.Context, id int64) (*User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithCause(err).WithDetail("message", fmt.Sprintf("user %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (d *PostgresDirectory) ByRoles(ctx context.Context, roles ...string) ([]User, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = ANY($1) AND active ORDER BY id`,
		pq.Array(roles),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func (d *PostgresDirectory) ManagerChain(ctx context.Context, userID int64) ([]User, error) {
	rows, err := d.db.QueryContext(ctx, `
		WITH RECURSIVE chain (id, depth) AS (
			SELECT manager_id, 1 FROM users WHERE id = $1 AND manager_id IS NOT NULL
			UNION ALL
			SELECT u.manager_id, c.depth + 1
			FROM users u JOIN chain c ON u.id = c.id
			WHERE u.manager_id IS NOT NULL AND c.depth < $2
		)
		SELECT `+joinedUserColumns+`
		FROM chain c JOIN users u ON u.id = c.id
		WHERE u.active
		ORDER BY c.depth`,
		userID, maxChainDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manager chain: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var chain []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan manager: %w", err)
		}
		if seen[u.ID] || u.ID == userID {
			continue
		}
		seen[u.ID] = true
		chain = append(chain, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate manager chain: %w", err)
	}
	return chain, nil
}
