package inmemdb

import (
	"context"
	"strings"

	"github.com/probestem/probe/core"
	"github.com/probestem/probe/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = cloneStrings(usr.Roles)
	if usr.PasswordHash != nil {
		hash := make([]byte, len(usr.PasswordHash))
		copy(hash, usr.PasswordHash)
		usr.PasswordHash = hash
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = struct{}{}
	}

	var unameTaken, emailTaken bool
	for id, usr := range repo.db.users {
		if _, ok := excluded[id]; ok {
			continue
		}
		if username != "" && usr.Username == username {
			unameTaken = true
		}
		if email != "" && usr.Email == email {
			emailTaken = true
		}
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

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = newID()
	repo.db.users[usr.ID] = copyUser(usr)
	return copyUser(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter == nil || matchUser(usr, filter) {
			users = append(users, copyUser(usr))
		}
	}

	// stable default order, then the requested one
	sortByOrderings(users, []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}}, userComparer(users))
	if len(ordering) > 0 {
		sortByOrderings(users, ordering, userComparer(users))
	}
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	// search keyword matching any of Name, Username or Email
	if filter.Search != "" &&
		!containsFold(usr.Name, filter.Search) &&
		!containsFold(usr.Username, filter.Search) &&
		!containsFold(usr.Email, filter.Search) {
		return false
	}
	// any of the specified roles
	if len(filter.Roles) > 0 {
		var found bool
		for _, r := range filter.Roles {
			if usr.RoleStartsWith(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func userComparer(users []user.User) func(field string, i, j int) int {
	return func(field string, i, j int) int {
		a, b := users[i], users[j]
		switch field {
		case "id":
			return strings.Compare(a.ID, b.ID)
		case "name":
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case "username":
			return strings.Compare(a.Username, b.Username)
		case "email":
			return strings.Compare(a.Email, b.Email)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		case "last_login":
			return compareTimes(a.LastLogin, b.LastLogin)
		}
		return 0
	}
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	match := func(usr user.User) bool { return false }
	switch {
	case filter.ID != "":
		if usr, ok := repo.db.users[filter.ID]; ok {
			return copyUser(usr), nil
		}
		return user.User{}, user.ErrNotFound
	case filter.Username != "":
		match = func(usr user.User) bool { return usr.Username == filter.Username }
	case filter.Email != "":
		match = func(usr user.User) bool { return usr.Email == filter.Email }
	case len(filter.UsernameOrEmail) > 0:
		uname, email := filter.UsernameAndEmail()
		match = func(usr user.User) bool {
			return (uname != "" && usr.Username == uname) || (email != "" && usr.Email == email)
		}
	}
	for _, usr := range repo.db.users {
		if match(usr) {
			return copyUser(usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.users[usr.ID] = copyUser(usr)
	return copyUser(usr), nil
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

// DeleteUsersByID deletes the users and everything they own.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var deleted int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		repo.db.deleteOwnedBy(id)
		deleted++
	}
	return deleted, nil
}

// deleteOwnedBy removes the rows referencing user `id` and fixes the counters of the rows left.
// The caller must hold the lock.
func (db *DB) deleteOwnedBy(id string) {
	for pid, p := range db.projects {
		if p.OwnerID == id {
			db.deleteProject(pid)
		}
	}
	for aid, app := range db.applications {
		if app.ApplicantID != id {
			continue
		}
		delete(db.applications, aid)
		if p, ok := db.projects[app.ProjectID]; ok && p.ApplicantCount > 0 {
			p.ApplicantCount--
			db.projects[p.ID] = p
		}
	}
	for did, d := range db.discussions {
		if d.AuthorID == id {
			db.deleteDiscussion(did)
		}
	}
	for _, a := range db.answers {
		if a.AuthorID == id {
			db.deleteAnswer(a)
		}
	}

	voted := make(map[voteKey]struct{})
	for key := range db.votes {
		if key.userID == id {
			delete(db.votes, key)
			voted[voteKey{targetType: key.targetType, targetID: key.targetID}] = struct{}{}
		}
	}
	for key := range voted {
		db.recountVotes(key.targetType, key.targetID)
	}

	for wid, w := range db.webinars {
		if w.HostID == id {
			delete(db.webinars, wid)
		}
	}
	for pid, p := range db.posts {
		if p.AuthorID == id {
			delete(db.posts, pid)
		}
	}
	for nid, n := range db.notifications {
		if n.RecipientID == id {
			delete(db.notifications, nid)
		}
	}
}
