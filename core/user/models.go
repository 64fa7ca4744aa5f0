package user

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/probestem/probe/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminSuper = "admin:super"

	// Professor
	RoleProfessor = "professor:"

	// Business
	RoleBusiness = "business:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles     = []string{RoleAdmin, RoleAdminSuper}
	ProfessorRoles = []string{RoleProfessor}
	BusinessRoles  = []string{RoleBusiness}
	StudentRoles   = []string{RoleStudent}
	SignupRoles    = []string{RoleStudent, RoleProfessor, RoleBusiness}
	AllRoles       = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminSuper: 30,
		RoleAdmin:      21,

		// Professors & Businesses: 20 - 11
		RoleProfessor: 12,
		RoleBusiness:  11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Professor", Value: RoleProfessor},
		{Name: "Business", Value: RoleBusiness},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleAdminSuper},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, ProfessorRoles...)
	all = append(all, BusinessRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// RoleName returns the display name of a role, eg. "Professor".
func RoleName(role string) string {
	for _, r := range Roles {
		if r.Value == role {
			return r.Name
		}
	}
	return strings.TrimSuffix(role, ":")
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Profile holds the public details of a user. Which fields are relevant depends on the user's roles.
type Profile struct {
	// everyone
	Headline string `json:"headline,omitempty" validate:"omitempty,max=140"`
	Bio      string `json:"bio,omitempty" validate:"omitempty,max=4000"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty" validate:"omitempty,url"`

	// students & professors
	Institution string `json:"institution,omitempty"`

	// students
	Major          string   `json:"major,omitempty"`
	GraduationYear int      `json:"graduation_year,omitempty" validate:"omitempty,min=1950,max=2100"`
	Skills         []string `json:"skills,omitempty" validate:"omitempty,max=50,dive,notblank"`

	// professors
	Department        string   `json:"department,omitempty"`
	ResearchInterests []string `json:"research_interests,omitempty" validate:"omitempty,max=50,dive,notblank"`

	// businesses
	CompanyName string `json:"company_name,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty" validate:"omitempty,url"`
}

// ForRoles returns a copy of the Profile keeping only the fields that belong to the given roles.
func (p Profile) ForRoles(roles []string) Profile {
	var isStudent, isProfessor, isBusiness bool
	for _, role := range roles {
		switch {
		case strings.HasPrefix(role, RoleStudent):
			isStudent = true
		case strings.HasPrefix(role, RoleProfessor):
			isProfessor = true
		case strings.HasPrefix(role, RoleBusiness):
			isBusiness = true
		}
	}

	kept := Profile{
		Headline: p.Headline,
		Bio:      p.Bio,
		Location: p.Location,
		LinkedIn: p.LinkedIn,
	}
	if isStudent || isProfessor {
		kept.Institution = p.Institution
	}
	if isStudent {
		kept.Major = p.Major
		kept.GraduationYear = p.GraduationYear
		kept.Skills = p.Skills
	}
	if isProfessor {
		kept.Department = p.Department
		kept.ResearchInterests = p.ResearchInterests
	}
	if isBusiness {
		kept.CompanyName = p.CompanyName
		kept.Industry = p.Industry
		kept.Website = p.Website
	}
	return kept
}

func (p Profile) clean() Profile {
	p.Headline = core.CleanString(p.Headline)
	p.Bio = core.CleanString(p.Bio)
	p.Location = core.CleanString(p.Location)
	p.LinkedIn = core.CleanString(p.LinkedIn)
	p.Institution = core.CleanString(p.Institution)
	p.Major = core.CleanString(p.Major)
	p.Skills = core.CleanStrings(p.Skills)
	p.Department = core.CleanString(p.Department)
	p.ResearchInterests = core.CleanStrings(p.ResearchInterests)
	p.CompanyName = core.CleanString(p.CompanyName)
	p.Industry = core.CleanString(p.Industry)
	p.Website = core.CleanString(p.Website)
	return p
}

// Value implements driver.Valuer; profiles are stored as JSON documents.
func (p Profile) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Profile) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = Profile{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("user.Profile.Scan: unsupported type %T", src)
	}
	if len(data) == 0 {
		*p = Profile{}
		return nil
	}
	return json.Unmarshal(data, p)
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	Profile      Profile   `json:"profile"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) HasRole(role string) bool {
	return core.ContainsString(u.Roles, role)
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsSuperAdmin() bool {
	return u.HasRole(RoleAdminSuper)
}

func (u *User) IsProfessor() bool {
	return u.RoleStartsWith(RoleProfessor)
}

func (u *User) IsBusiness() bool {
	return u.RoleStartsWith(RoleBusiness)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// PublicProfile is what anyone can see about a user.
type PublicProfile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Profile  Profile  `json:"profile"`
}

func (u User) Public() PublicProfile {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return PublicProfile{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Roles:    roles,
		Profile:  u.Profile.ForRoles(u.Roles),
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,max=30,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Profile         Profile  `json:"profile"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Roles = core.CleanStrings(nu.Roles, true /* lower */)
	nu.Profile = nu.Profile.clean()

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// SignupUser is used by students, professors & businesses to register themselves.
type SignupUser struct {
	Name            string  `json:"name" validate:"required"`
	Username        string  `json:"username" validate:"omitempty,min=3,max=30,alphanum_"`
	Email           string  `json:"email" validate:"required,email"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string  `json:"role" validate:"required,signuprole"`
	Profile         Profile `json:"profile"`
}

func (su *SignupUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	su.Name = core.CleanString(su.Name)
	su.Username = core.CleanString(su.Username, true /* lower */)
	su.Email = core.CleanString(su.Email, true /* lower */)
	su.Role = core.CleanString(su.Role, true /* lower */)
	su.Profile = su.Profile.clean()

	if err := validate.Struct(su); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, su.Username, su.Email)
}

func (su SignupUser) toNewUser() NewUser {
	return NewUser{
		Name:            su.Name,
		Username:        su.Username,
		Email:           su.Email,
		Password:        su.Password,
		PasswordConfirm: su.PasswordConfirm,
		Roles:           []string{su.Role},
		Profile:         su.Profile,
	}
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,max=30,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	Profile         *Profile `json:"profile"`

	roles []string // effective roles, used for profile validation
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if uu.Roles != nil {
		uu.Roles = core.CleanStrings(uu.Roles, true /* lower */)
		uu.roles = uu.Roles
	} else {
		uu.roles = origUsr.Roles
	}
	if uu.Profile != nil {
		p := uu.Profile.clean()
		uu.Profile = &p
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

var OrderingFields = []string{"name", "username", "email", "created_at", "updated_at", "last_login"}

type QueryFilter struct {
	Search      string
	Roles       []string
	IsActive    *bool
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Roles = core.CleanStrings(qf.Roles, true /* lower */)
}

// GetFilter selects a single user. The first non-empty field is used.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string // [username, email]; a single value is matched against both
}

// UsernameAndEmail returns the username & email to match for the UsernameOrEmail filter.
func (gf GetFilter) UsernameAndEmail() (string, string) {
	var uname, email string
	if len(gf.UsernameOrEmail) > 0 {
		uname = gf.UsernameOrEmail[0]
	}
	if len(gf.UsernameOrEmail) > 1 {
		email = gf.UsernameOrEmail[1]
	}
	if email == "" {
		email = uname
	} else if uname == "" {
		uname = email
	}
	return uname, email
}
