package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"entadmin.io/internal/auth"
	"entadmin.io/internal/ids"
)

const userColumns = `id, enterprise_id, role_id, username, email, password_hash, status,
	failed_login_attempts, locked_until, last_login_at,
	reset_token_hash, reset_token_expires_at, is_system, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		u         auth.User
		locked    sql.NullTime
		lastLogin sql.NullTime
		resetHash sql.NullString
		resetExp  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.EnterpriseID, &u.RoleID, &u.Username, &u.Email, &u.PasswordHash, &u.Status,
		&u.FailedLoginAttempts, &locked, &lastLogin,
		&resetHash, &resetExp, &u.System, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return auth.User{}, err
	}
	if locked.Valid {
		t := locked.Time
		u.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if resetHash.Valid {
		v := resetHash.String
		u.ResetTokenHash = &v
	}
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetTokenExpiresAt = &t
	}
	return u, nil
}

// Users ---------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, enterprise_id, role_id, username, email, password_hash, status, is_system)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, u.ID, u.EnterpriseID, u.RoleID, u.Username, u.Email, u.PasswordHash, u.Status, u.System)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, enterpriseID string) ([]auth.User, error) {
	query := `select ` + userColumns + ` from users order by username`
	args := []any{}
	if enterpriseID != "" {
		query = `select ` + userColumns + ` from users where enterprise_id = $1 order by username`
		args = append(args, enterpriseID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd auth.UserUpdate) (auth.User, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Username != nil {
		sets = append(sets, fmt.Sprintf("username = $%d", idx))
		args = append(args, *upd.Username)
		idx++
	}
	if upd.Email != nil {
		sets = append(sets, fmt.Sprintf("email = $%d", idx))
		args = append(args, *upd.Email)
		idx++
	}
	if upd.Password != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.Password)
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if upd.RoleID != nil {
		sets = append(sets, fmt.Sprintf("role_id = $%d", idx))
		args = append(args, *upd.RoleID)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, userID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok {
				switch pgErr.Code {
				case pgErrUniqueViolation:
					return auth.User{}, auth.ErrConflict
				case pgErrForeignKeyViolation:
					return auth.User{}, auth.ErrNotFound
				}
			}
			return auth.User{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.User{}, err
		}
		if aff == 0 {
			return auth.User{}, auth.ErrNotFound
		}
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, userID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Login attempts ------------------------------------------------------------

// RecordLoginFailure is a single read-modify-write so concurrent failed
// attempts against the same row cannot lose increments; the row lock
// serializes them.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockedUntil time.Time) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users set
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = case
				when failed_login_attempts + 1 >= $2 then $3
				else locked_until
			end,
			updated_at = now()
		where id = $1
		returning `+userColumns, userID, threshold, lockedUntil))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			failed_login_attempts = 0,
			locked_until = null,
			last_login_at = $2,
			updated_at = now()
		where id = $1
	`, userID, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Password reset ------------------------------------------------------------

func (s *Store) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			reset_token_hash = $2,
			reset_token_expires_at = $3,
			updated_at = now()
		where id = $1
	`, userID, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+` from users
		where reset_token_hash = $1 and reset_token_expires_at > $2
	`, tokenHash, now))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) ConsumeResetToken(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			password_hash = $2,
			reset_token_hash = null,
			reset_token_expires_at = null,
			failed_login_attempts = 0,
			locked_until = null,
			updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Roles ---------------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, is_system_role, is_superuser)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description), role.SystemRole, role.Superuser)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (auth.Role, error) {
	var (
		role auth.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, is_system_role, is_superuser, created_at, updated_at
		from roles where id = $1
	`, id).Scan(&role.ID, &role.Name, &desc, &role.SystemRole, &role.Superuser, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Role{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, is_system_role, is_superuser, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			role auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.SystemRole, &role.Superuser, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, roleID string, upd auth.RoleUpdate) (auth.Role, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			sets = append(sets, "description = null")
		} else {
			sets = append(sets, fmt.Sprintf("description = $%d", idx))
			args = append(args, *upd.Description)
			idx++
		}
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update roles set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, roleID)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.Role{}, auth.ErrConflict
			}
			return auth.Role{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.Role{}, err
		}
		if aff == 0 {
			return auth.Role{}, auth.ErrNotFound
		}
	}
	return s.GetRole(ctx, roleID)
}

// DeleteRole maps the users.role_id foreign key violation to ErrConflict:
// a role still assigned to users cannot go away.
func (s *Store) DeleteRole(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Permissions ---------------------------------------------------------------

// ReplaceRolePermissions swaps the full set inside one transaction. A
// reader never observes the half-replaced state and any insert failure
// rolls back to the previous set.
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID string, perms []auth.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, module, can_create, can_read, can_update, can_delete)
			values ($1, $2, $3, $4, $5, $6)
		`, roleID, string(p.Module), p.CanCreate, p.CanRead, p.CanUpdate, p.CanDelete); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PermissionsForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_id, module, can_create, can_read, can_update, can_delete
		from role_permissions where role_id = $1
		order by module
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var (
			p      auth.Permission
			module string
		)
		if err := rows.Scan(&p.RoleID, &module, &p.CanCreate, &p.CanRead, &p.CanUpdate, &p.CanDelete); err != nil {
			return nil, err
		}
		p.Module = auth.Module(module)
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Enterprises ---------------------------------------------------------------

func (s *Store) CreateEnterprise(ctx context.Context, ent *auth.Enterprise) error {
	if ent.ID == "" {
		ent.ID = ids.New()
	}
	if ent.Status == "" {
		ent.Status = auth.StatusActive
	}
	row := s.db.QueryRowContext(ctx, `
		insert into enterprises (id, name, location, contact_info, status)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, ent.ID, ent.Name, nullIfEmpty(ent.Location), nullIfEmpty(ent.ContactInfo), ent.Status)
	if err := row.Scan(&ent.CreatedAt, &ent.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetEnterprise(ctx context.Context, id string) (auth.Enterprise, error) {
	var (
		ent      auth.Enterprise
		location sql.NullString
		contact  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, location, contact_info, status, created_at, updated_at
		from enterprises where id = $1
	`, id).Scan(&ent.ID, &ent.Name, &location, &contact, &ent.Status, &ent.CreatedAt, &ent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Enterprise{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Enterprise{}, err
	}
	if location.Valid {
		ent.Location = location.String
	}
	if contact.Valid {
		ent.ContactInfo = contact.String
	}
	return ent, nil
}

func (s *Store) ListEnterprises(ctx context.Context) ([]auth.Enterprise, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, location, contact_info, status, created_at, updated_at
		from enterprises order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ents []auth.Enterprise
	for rows.Next() {
		var (
			ent      auth.Enterprise
			location sql.NullString
			contact  sql.NullString
		)
		if err := rows.Scan(&ent.ID, &ent.Name, &location, &contact, &ent.Status, &ent.CreatedAt, &ent.UpdatedAt); err != nil {
			return nil, err
		}
		if location.Valid {
			ent.Location = location.String
		}
		if contact.Valid {
			ent.ContactInfo = contact.String
		}
		ents = append(ents, ent)
	}
	return ents, rows.Err()
}

func (s *Store) UpdateEnterprise(ctx context.Context, id string, upd auth.EnterpriseUpdate) (auth.Enterprise, error) {
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Location != nil {
		sets = append(sets, fmt.Sprintf("location = $%d", idx))
		args = append(args, *upd.Location)
		idx++
	}
	if upd.ContactInfo != nil {
		sets = append(sets, fmt.Sprintf("contact_info = $%d", idx))
		args = append(args, *upd.ContactInfo)
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update enterprises set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return auth.Enterprise{}, auth.ErrConflict
			}
			return auth.Enterprise{}, err
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return auth.Enterprise{}, err
		}
		if aff == 0 {
			return auth.Enterprise{}, auth.ErrNotFound
		}
	}
	return s.GetEnterprise(ctx, id)
}

func (s *Store) DeleteEnterprise(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from enterprises where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Dashboard -----------------------------------------------------------------

func (s *Store) DashboardCounts(ctx context.Context) (auth.DashboardCounts, error) {
	var counts auth.DashboardCounts
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from users),
			(select count(*) from roles),
			(select count(*) from enterprises)
	`).Scan(&counts.Users, &counts.Roles, &counts.Enterprises)
	if err != nil {
		return auth.DashboardCounts{}, err
	}
	return counts, nil
}
