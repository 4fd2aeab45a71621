package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admotion_platform/platform/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFoundWithEmail = errors.New("no user found for given email")
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrGeneratingJwt         = errors.New("error generating jwt")
	ErrEmailAlreadyInUse     = errors.New("email is already in use")
)

type LoginResult struct {
	UserId      uuid.UUID
	AccessToken string
}

// IdentityProvider abstracts the credential store. The basic provider keeps
// bcrypt hashes on the user row and issues its own JWTs; the keycloak
// provider delegates both to a keycloak realm and supports OAuth token login.
//
// CreateIdentity only establishes the login credential (plus a stub user row
// for the basic provider); the registration saga in the user service owns the
// profile and role rows. DeleteIdentity is the saga's compensation for a
// partial registration and must tolerate the identity already being gone.
type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	AllowDirectSignup() bool

	LoginWithEmail(email, password string) (LoginResult, error)

	LoginWithToken(accessToken string) (LoginResult, error)

	CreateIdentity(name, email, password string) (uuid.UUID, error)

	DeleteIdentity(userId uuid.UUID) error

	GetTokenExpiration(r *http.Request) (time.Time, error)
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, name, email string, password []byte) error {
	user := schema.User{
		Id:     userId,
		Role:   schema.RoleAdmin,
		Email:  email,
		Name:   name,
		Status: schema.UserActive,
	}
	if password != nil {
		user.Password = password
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "id = ? or email = ?", userId, email)
		if result.Error != nil {
			slog.Error("sql error checking if initial admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			if result := txn.Create(&user); result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			admin := schema.Admin{Id: userId, AccessLevel: schema.AccessSuperAdmin, Active: true}
			if result := txn.Create(&admin); result.Error != nil {
				slog.Error("sql error creating initial admin profile", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type requestContextKey string

const (
	UserRequestContextKey requestContextKey = "user"
)
