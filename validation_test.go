package lmsauth_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	oa "github.com/panyam/lmsauth"
)

func TestIsStrongPassword(t *testing.T) {
	tests := []struct {
		password string
		want     bool
	}{
		{"Secure@123", true},
		{"aB3$aB3$", true},
		{"secure@123", false},
		{"SECURE@123", false},
		{"Secure@abc", false},
		{"Secure1234", false},
		{"Secure#123", false},
		{"Secure @123", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, oa.IsStrongPassword(tt.password), "IsStrongPassword(%q)", tt.password)
	}
}

func validRegister() oa.RegisterRequest {
	return oa.RegisterRequest{
		Name:            "Ada Lovelace",
		Email:           "ada@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	}
}

func TestValidatorFirstError(t *testing.T) {
	v := oa.NewValidator(false)
	require.NoError(t, v.Validate(&oa.RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: testPassword, ConfirmPassword: testPassword, Role: "admin",
	}))

	tests := []struct {
		name    string
		mutate  func(*oa.RegisterRequest)
		field   string
		message string
	}{
		{"missing name", func(r *oa.RegisterRequest) { r.Name = "" }, "name", `"name" is required`},
		{"short name", func(r *oa.RegisterRequest) { r.Name = "Al" }, "name", `"name" length must be at least 3 characters long`},
		{"bad email", func(r *oa.RegisterRequest) { r.Email = "not-an-email" }, "email", `"email" must be a valid email`},
		{"short password", func(r *oa.RegisterRequest) { r.Password, r.ConfirmPassword = "Ab1@", "Ab1@" }, "password", `"password" length must be at least 8 characters long`},
		{"weak password", func(r *oa.RegisterRequest) { r.Password, r.ConfirmPassword = "password1", "password1" }, "password", "Password must contain at least one uppercase, one lowercase, one number and one special character"},
		{"missing confirmation", func(r *oa.RegisterRequest) { r.ConfirmPassword = "" }, "confirm_password", "Confirm Password is required"},
		{"mismatch", func(r *oa.RegisterRequest) { r.ConfirmPassword = "Secure@124" }, "confirm_password", "Passwords do not match"},
		{"unknown role", func(r *oa.RegisterRequest) { r.Role = "superuser" }, "role", `"role" must be one of [student, instructor, admin]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRegister()
			tt.mutate(&req)
			err := v.Validate(&req)
			require.Error(t, err)

			var e *oa.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, oa.KindValidation, e.Kind)
			assert.Equal(t, http.StatusBadRequest, e.HTTPStatus())
			assert.Equal(t, tt.field, e.Field)
			assert.Equal(t, tt.message, e.Message)
		})
	}
}

func TestValidatorCollectAll(t *testing.T) {
	v := oa.NewValidator(true)
	err := v.Validate(&oa.RegisterRequest{Email: "nope"})

	var e *oa.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "Validation error", e.Message)
	assert.Contains(t, e.Details, `"name" is required`)
	assert.Contains(t, e.Details, `"email" must be a valid email`)
	assert.Contains(t, e.Details, "Confirm Password is required")
	assert.GreaterOrEqual(t, len(e.Details), 4)
}

func TestValidateChangePassword(t *testing.T) {
	v := oa.NewValidator(false)
	err := v.Validate(&oa.ChangePasswordRequest{CurrentPassword: "old", NewPassword: "Engine&2024"})
	var e *oa.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "confirmNewPassword", e.Field)
	assert.Equal(t, "Confirm New Password is required", e.Message)
}

func TestRoles(t *testing.T) {
	r, err := oa.ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, oa.RoleStudent, r)

	r, err = oa.ParseRole("instructor")
	require.NoError(t, err)
	assert.Equal(t, oa.RoleInstructor, r)

	_, err = oa.ParseRole("Admin")
	assert.Error(t, err)

	assert.True(t, oa.RoleAdmin.AtLeast(oa.RoleInstructor))
	assert.True(t, oa.RoleInstructor.AtLeast(oa.RoleInstructor))
	assert.False(t, oa.RoleStudent.AtLeast(oa.RoleInstructor))
	assert.False(t, oa.Role("guest").AtLeast(oa.RoleStudent))
	assert.Len(t, oa.AllRoles(), 3)
}

func TestBcryptHasher(t *testing.T) {
	h := oa.NewBcryptHasher(4)
	hash, err := h.Hash(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, testPassword, hash)

	assert.True(t, h.Verify(testPassword, hash))
	assert.False(t, h.Verify("Secure@124", hash))
	assert.False(t, h.Verify(testPassword, ""))
	assert.False(t, h.Verify(testPassword, "not-a-bcrypt-hash"))
	h.VerifyAbsent(testPassword)

	other, err := h.Hash(testPassword)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes must be salted")

	assert.Equal(t, bcrypt.MinCost, oa.NewBcryptHasher(1).Cost)
	assert.Equal(t, oa.DefaultBcryptCost, oa.NewBcryptHasher(0).Cost)
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, http.StatusConflict, oa.ConflictError(oa.ErrCodeEmailExists, "x", "email").HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, oa.AuthenticationError(oa.ErrCodeNotAuthed, "x").HTTPStatus())
	assert.Equal(t, http.StatusForbidden, oa.AuthorizationError("x", "x").HTTPStatus())
	assert.Equal(t, http.StatusNotFound, oa.NotFoundError(oa.ErrCodeUserNotFound, "x").HTTPStatus())

	cause := errors.New("disk on fire")
	e := oa.AsError(cause)
	assert.Equal(t, oa.KindInternal, e.Kind)
	assert.Equal(t, "Internal server error", e.Message)
	assert.ErrorIs(t, e, cause)
	assert.True(t, oa.IsKind(oa.ValidationError("", "bad", ""), oa.KindValidation))
	assert.False(t, oa.IsKind(cause, oa.KindValidation))
}
