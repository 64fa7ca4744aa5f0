package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/discussion"
	"github.com/probestem/probe/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, profile, created_at, updated_at, last_login`

var userOrderColumns = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	Profile      user.Profile   `db:"profile"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: usr.PasswordHash,
		Profile:      usr.Profile,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (r userRow) toUser() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        roles,
		PasswordHash: r.PasswordHash,
		Profile:      r.Profile,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastLogin.Valid {
		usr.LastLogin = r.LastLogin.Time.UTC()
	}
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	if username == "" && email == "" {
		return nil
	}
	var w where
	w.add("(username = ? OR email = ?)", username, email)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		if ids = validIDs(ids); len(ids) > 0 {
			w.addIn("id NOT", ids)
		}
	}

	var taken []struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	q := repo.db.Rebind(`SELECT username, email FROM "user"` + w.String())
	if err := repo.db.SelectContext(ctx, &taken, q, w.args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}

	var unameTaken, emailTaken bool
	for _, u := range taken {
		unameTaken = unameTaken || (username != "" && u.Username.String == username)
		emailTaken = emailTaken || (email != "" && u.Email.String == email)
	}
	switch {
	case unameTaken && emailTaken:
		return user.ErrUserExists
	case unameTaken:
		return user.ErrUsernameExists
	case emailTaken:
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	row := toUserRow(usr)
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :name, :username, :email, :is_active, :roles, :password_hash, :profile, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := likeArg(filter.Search)
			w.add("(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)", val, val, val)
		}
		// any role starting with any of the provided roles
		if len(filter.Roles) > 0 {
			prefixes := make([]string, len(filter.Roles))
			for i, role := range filter.Roles {
				prefixes[i] = role + "%"
			}
			w.add("EXISTS (SELECT 1 FROM UNNEST(roles) AS user_role WHERE user_role LIKE ANY(?))", pq.Array(prefixes))
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	var rows []userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String() + orderBy(ordering, userOrderColumns, "created_at DESC"))
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Username != "":
		w.add("username = ?", filter.Username)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case len(filter.UsernameOrEmail) > 0:
		uname, email := filter.UsernameAndEmail()
		w.add("(username = ? OR email = ?)", uname, email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := repo.db.Rebind(`SELECT ` + userColumns + ` FROM "user"` + w.String() + ` LIMIT 1`)
	if err := repo.db.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "finding user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	if !isUUID(usr.ID) {
		return user.User{}, user.ErrNotFound
	}
	row := toUserRow(usr)
	q := `UPDATE "user" SET name = :name, username = :username, email = :email, is_active = :is_active,
		roles = :roles, password_hash = :password_hash, profile = :profile, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUserExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if _, err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return row.toUser(), nil
}

// UpdateOrCreateUser updates the user with the same username or email, or creates it.
func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	existing, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{usr.Username, usr.Email}})
	switch {
	case err == nil:
		usr.ID = existing.ID
		usr.CreatedAt = existing.CreatedAt
		usr.LastLogin = existing.LastLogin
		return repo.UpdateUser(ctx, usr)
	case err == user.ErrNotFound:
		return repo.CreateUser(ctx, usr)
	}
	return user.User{}, err
}

// DeleteUsersByID deletes the users; their rows follow through ON DELETE CASCADE.
// The counters & vote tallies of the rows that stay are fixed beforehand, in the same transaction.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if ids = validIDs(ids); len(ids) == 0 {
		return 0, nil
	}

	var deleted int
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		exec := func(msg, query string, args ...interface{}) (sql.Result, error) {
			q, args, err := sqlx.In(query, args...)
			if err != nil {
				return nil, errors.Wrap(err, "building query")
			}
			res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
			return res, errors.Wrap(err, msg)
		}

		if _, err := exec("decrementing applicant counts", `UPDATE project p SET applicant_count = GREATEST(p.applicant_count - c.n, 0)
			FROM (SELECT project_id, COUNT(*) AS n FROM application WHERE applicant_id IN (?) GROUP BY project_id) c
			WHERE p.id = c.project_id`, ids); err != nil {
			return err
		}
		if _, err := exec("decrementing answer counts", `UPDATE discussion d SET answer_count = GREATEST(d.answer_count - c.n, 0)
			FROM (SELECT discussion_id, COUNT(*) AS n FROM answer WHERE author_id IN (?) GROUP BY discussion_id) c
			WHERE d.id = c.discussion_id`, ids); err != nil {
			return err
		}
		// votes have no foreign key on their target
		if _, err := exec("deleting votes on deleted posts", `DELETE FROM vote
			WHERE (target_type = ? AND target_id IN (SELECT id FROM discussion WHERE author_id IN (?)))
			OR (target_type = ? AND target_id IN (SELECT a.id FROM answer a JOIN discussion d ON d.id = a.discussion_id
				WHERE a.author_id IN (?) OR d.author_id IN (?)))`,
			discussion.TargetDiscussion, ids, discussion.TargetAnswer, ids, ids); err != nil {
			return err
		}

		q, args, err := sqlx.In(`DELETE FROM vote WHERE user_id IN (?) RETURNING target_type, target_id`, ids)
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		var voted []struct {
			TargetType string `db:"target_type"`
			TargetID   string `db:"target_id"`
		}
		if err = tx.SelectContext(ctx, &voted, tx.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "deleting votes")
		}
		targets := make(map[string][]string, len(voteTables))
		seen := make(map[string]struct{}, len(voted))
		for _, v := range voted {
			if _, ok := seen[v.TargetType+v.TargetID]; !ok {
				seen[v.TargetType+v.TargetID] = struct{}{}
				targets[v.TargetType] = append(targets[v.TargetType], v.TargetID)
			}
		}
		for _, targetType := range []string{discussion.TargetDiscussion, discussion.TargetAnswer} {
			if len(targets[targetType]) == 0 {
				continue
			}
			if _, err = exec("recounting votes", `UPDATE `+voteTables[targetType]+` t SET
				upvotes = (SELECT COUNT(*) FROM vote v WHERE v.target_type = ? AND v.target_id = t.id AND v.value > 0),
				downvotes = (SELECT COUNT(*) FROM vote v WHERE v.target_type = ? AND v.target_id = t.id AND v.value < 0)
				WHERE t.id IN (?)`, targetType, targetType, targets[targetType]); err != nil {
				return err
			}
		}

		res, err := exec("deleting users", `DELETE FROM "user" WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = int(n)
		return errors.Wrap(err, "getting affected rows")
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
