// Package pg implements the credential store on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mymasternode.org/internal/auth"
)

// Store implements auth.Store using PostgreSQL via database/sql.
type Store struct {
	db *sql.DB

	maxRetries  uint64
	baseBackoff time.Duration
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle; used by tests with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		maxRetries:  3,
		baseBackoff: 100 * time.Millisecond,
	}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for readiness probes and migrations.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// retry runs op with bounded exponential backoff. Only transient
// connectivity failures are retried; business-rule failures (constraint
// violations, missing rows) surface immediately.
func (s *Store) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.baseBackoff
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.maxRetries), ctx))
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// mapError converts driver failures to auth sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return auth.ErrConflict
		case "23503": // foreign_key_violation
			return auth.ErrNotFound
		}
	}
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	return s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`insert into users(username, password, role_id) values($1,$2,$3) returning id`,
			u.Username, u.PasswordHash, u.RoleID,
		)
		if err := row.Scan(&u.ID); err != nil {
			return mapError(err)
		}
		return nil
	})
}

const userColumns = `u.id, u.username, u.password, u.role_id, r.name`

func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	var user *auth.User
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`select `+userColumns+` from users u join roles r on r.id = u.role_id where u.id = $1`, id)
		u, err := scanUser(row)
		if err != nil {
			return mapError(err)
		}
		u.Scopes, err = s.userScopes(ctx, u.ID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	var user *auth.User
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`select `+userColumns+` from users u join roles r on r.id = u.role_id where lower(u.username) = lower($1)`,
			username)
		u, err := scanUser(row)
		if err != nil {
			return mapError(err)
		}
		u.Scopes, err = s.userScopes(ctx, u.ID)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

func (s *Store) ListUsers(ctx context.Context, includeScopes bool) ([]*auth.User, error) {
	var users []*auth.User
	err := s.retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			`select `+userColumns+` from users u join roles r on r.id = u.role_id order by u.id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		var out []*auth.User
		byID := make(map[int64]*auth.User)
		for rows.Next() {
			var u auth.User
			if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &u.RoleName); err != nil {
				return err
			}
			out = append(out, &u)
			byID[u.ID] = &u
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if includeScopes && len(out) > 0 {
			grants, err := s.db.QueryContext(ctx,
				`select us.user_id, sc.id, sc.name from users_scopes us join scopes sc on sc.id = us.scope_id order by sc.id`)
			if err != nil {
				return err
			}
			defer grants.Close()
			for grants.Next() {
				var (
					userID int64
					scope  auth.Scope
				)
				if err := grants.Scan(&userID, &scope.ID, &scope.Name); err != nil {
					return err
				}
				if u, ok := byID[userID]; ok {
					u.Scopes = append(u.Scopes, scope)
				}
			}
			if err := grants.Err(); err != nil {
				return err
			}
		}

		users = out
		return nil
	})
	return users, err
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) error {
	set := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if upd.Username != nil {
		args = append(args, *upd.Username)
		set = append(set, fmt.Sprintf("username = $%d", len(args)))
	}
	if upd.Password != nil {
		args = append(args, *upd.Password)
		set = append(set, fmt.Sprintf("password = $%d", len(args)))
	}
	if upd.RoleID != nil {
		args = append(args, *upd.RoleID)
		set = append(set, fmt.Sprintf("role_id = $%d", len(args)))
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf("update users set %s where id = $%d",
		joinSet(set), len(args))

	return s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(res)
	})
}

func (s *Store) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`update users set password = $1 where id = $2`, passwordHash, id)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(res)
	})
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(res)
	})
}

func (s *Store) GetRole(ctx context.Context, id int64) (*auth.Role, error) {
	var role *auth.Role
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `select id, name from roles where id = $1`, id)
		var r auth.Role
		if err := row.Scan(&r.ID, &r.Name); err != nil {
			return mapError(err)
		}
		role = &r
		return nil
	})
	return role, err
}

func (s *Store) ScopesByIDs(ctx context.Context, ids []int64) ([]auth.Scope, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var scopes []auth.Scope
	err := s.retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx,
			`select id, name from scopes where id = any($1) order by id`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		var out []auth.Scope
		for rows.Next() {
			var sc auth.Scope
			if err := rows.Scan(&sc.ID, &sc.Name); err != nil {
				return err
			}
			out = append(out, sc)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		scopes = out
		return nil
	})
	return scopes, err
}

func (s *Store) AddUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error {
	if len(scopeIDs) == 0 {
		return nil
	}
	return s.retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, scopeID := range scopeIDs {
			_, err := tx.ExecContext(ctx,
				`insert into users_scopes(user_id, scope_id) values($1,$2) on conflict do nothing`,
				userID, scopeID,
			)
			if err != nil {
				return mapError(err)
			}
		}
		return tx.Commit()
	})
}

func (s *Store) RemoveUserScopes(ctx context.Context, userID int64, scopeIDs []int64) error {
	if len(scopeIDs) == 0 {
		return nil
	}
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`delete from users_scopes where user_id = $1 and scope_id = any($2)`,
			userID, scopeIDs,
		)
		return mapError(err)
	})
}

// userScopes loads the scope grants of one user ordered by scope id.
func (s *Store) userScopes(ctx context.Context, userID int64) ([]auth.Scope, error) {
	rows, err := s.db.QueryContext(ctx,
		`select sc.id, sc.name from users_scopes us join scopes sc on sc.id = us.scope_id where us.user_id = $1 order by sc.id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scopes []auth.Scope
	for rows.Next() {
		var sc auth.Scope
		if err := rows.Scan(&sc.ID, &sc.Name); err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &u.RoleName); err != nil {
		return nil, err
	}
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func joinSet(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
