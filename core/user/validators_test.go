package user

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core"
	appfs "github.com/probestem/probe/fs"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newValidator() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

func TestCheckPassword(t *testing.T) {
	LoadCommonPasswords(appfs.FS, nopLogger{})

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "too short", pwd: "Sh0rt!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Has Sp4ce!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no upper", pwd: "n0upper#case", want: pwdComplexityTag},
		{name: "no lower", pwd: "N0LOWER#CASE", want: pwdComplexityTag},
		{name: "no digit", pwd: "NoDigits#Here", want: pwdComplexityTag},
		{name: "no special", pwd: "NoSpecial1Here", want: pwdComplexityTag},
		{name: "similar to username", pwd: "Jdoe#2001x", attrs: []string{"jdoe2001x"}, want: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", want: pwdNoCommonTag},
		{name: "valid", pwd: "Str0ng#Passw0rd!", attrs: []string{"John Doe", "jdoe", "jdoe@test.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, tt.attrs...))
		})
	}
}

func TestPasswordError(t *testing.T) {
	assert.Equal(t, pwdMinLenText, PasswordError("short"))
	assert.Equal(t, "", PasswordError("Str0ng#Passw0rd!"))
}

func fieldTags(err error) map[string]string {
	tags := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			tags[fe.Field()] = fe.Tag()
		}
	}
	return tags
}

func TestSignupUserValidation(t *testing.T) {
	validate := newValidator()
	pwd := "Str0ng#Passw0rd!"

	tests := []struct {
		name     string
		su       SignupUser
		wantTags map[string]string
	}{
		{
			name:     "missing role",
			su:       SignupUser{Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd},
			wantTags: map[string]string{"role": "required"},
		},
		{
			name:     "admin role",
			su:       SignupUser{Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd, Role: RoleAdmin},
			wantTags: map[string]string{"role": signupRoleTag},
		},
		{
			name:     "professor without institution",
			su:       SignupUser{Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd, Role: RoleProfessor},
			wantTags: map[string]string{"institution": institutionTag},
		},
		{
			name:     "business without company",
			su:       SignupUser{Name: "Acme", Email: "hr@acme.com", Password: pwd, PasswordConfirm: pwd, Role: RoleBusiness},
			wantTags: map[string]string{"company_name": companyTag},
		},
		{
			name: "invalid graduation year",
			su: SignupUser{
				Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd, Role: RoleStudent,
				Profile: Profile{GraduationYear: 1800},
			},
			wantTags: map[string]string{"graduation_year": "min"},
		},
		{
			name: "invalid website",
			su: SignupUser{
				Name: "Acme", Email: "hr@acme.com", Password: pwd, PasswordConfirm: pwd, Role: RoleBusiness,
				Profile: Profile{CompanyName: "Acme", Website: "not a url"},
			},
			wantTags: map[string]string{"website": "url"},
		},
		{
			name:     "password mismatch",
			su:       SignupUser{Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: "nope", Role: RoleStudent},
			wantTags: map[string]string{"password_confirm": "eqfield"},
		},
		{
			name:     "weak password",
			su:       SignupUser{Name: "Jane", Email: "jane@test.com", Password: "weak", PasswordConfirm: "weak", Role: RoleStudent},
			wantTags: map[string]string{"password": pwdMinLenTag},
		},
		{
			name: "valid professor",
			su: SignupUser{
				Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd, Role: RoleProfessor,
				Profile: Profile{Institution: "MIT", Department: "Physics"},
			},
		},
		{
			name: "valid student",
			su:   SignupUser{Name: "Jane", Email: "jane@test.com", Password: pwd, PasswordConfirm: pwd, Role: RoleStudent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.su)
			if tt.wantTags == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantTags, fieldTags(err))
		})
	}
}

func TestNewUserValidation(t *testing.T) {
	validate := newValidator()
	pwd := "Str0ng#Passw0rd!"

	err := validate.Struct(NewUser{Name: "Admin", Password: pwd, PasswordConfirm: pwd})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"username": usernameOrEmailTag, "email": usernameOrEmailTag}, fieldTags(err))

	err = validate.Struct(NewUser{Name: "Admin", Username: "admin", Password: pwd, PasswordConfirm: pwd, Roles: []string{"root:"}})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"roles": allRolesTag}, fieldTags(err))

	assert.NoError(t, validate.Struct(NewUser{
		Name: "Admin", Username: "admin", Password: pwd, PasswordConfirm: pwd, Roles: []string{RoleAdmin},
	}))
}

func TestProfileForRoles(t *testing.T) {
	p := Profile{
		Headline:          "hi",
		Institution:       "MIT",
		Major:             "CS",
		GraduationYear:    2027,
		Skills:            []string{"go"},
		Department:        "EECS",
		ResearchInterests: []string{"ml"},
		CompanyName:       "Acme",
		Industry:          "Robotics",
		Website:           "https://acme.test",
	}

	student := p.ForRoles([]string{RoleStudent})
	assert.Equal(t, Profile{Headline: "hi", Institution: "MIT", Major: "CS", GraduationYear: 2027, Skills: []string{"go"}}, student)

	prof := p.ForRoles([]string{RoleProfessor})
	assert.Equal(t, Profile{Headline: "hi", Institution: "MIT", Department: "EECS", ResearchInterests: []string{"ml"}}, prof)

	biz := p.ForRoles([]string{RoleBusiness})
	assert.Equal(t, Profile{Headline: "hi", CompanyName: "Acme", Industry: "Robotics", Website: "https://acme.test"}, biz)

	admin := p.ForRoles([]string{RoleAdmin})
	assert.Equal(t, Profile{Headline: "hi"}, admin)
}

func TestLoadCommonPasswords(t *testing.T) {
	LoadCommonPasswords(appfs.FS, nopLogger{})
	assert.True(t, isCommonPassword("PASSWORD"))
	assert.False(t, isCommonPassword(strings.Repeat("x", 40)))
}
