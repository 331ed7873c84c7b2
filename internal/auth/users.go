package auth

import (
	"context"
	"errors"
	"strings"

	"go-pos-register/internal/database"
	"go-pos-register/internal/errs"
	"go-pos-register/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

// Users checks credentials and registers accounts.
type Users struct {
	db   *gorm.DB
	log  zerolog.Logger
	cost int
}

func NewUsers(db *gorm.DB, log zerolog.Logger) *Users {
	return &Users{db: db, log: log.With().Str("component", "auth").Logger(), cost: bcrypt.DefaultCost}
}

// Authenticate returns the user when the password matches. Unknown users and
// wrong passwords give the same UnauthorizedError.
func (u *Users) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := u.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &errs.UnauthorizedError{Message: "invalid credentials"}
	}
	if err != nil {
		return nil, database.Classify("authenticate", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		u.log.Info().Str("username", user.Username).Msg("login rejected")
		return nil, &errs.UnauthorizedError{Message: "invalid credentials"}
	}
	return &user, nil
}

// Register creates an account. The very first account becomes the admin,
// later ones are cashiers unless an admin created them with another role.
func (u *Users) Register(ctx context.Context, username, password, role string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errs.Validation("username", "username is required")
	}
	if len(password) < minPasswordLength {
		return nil, errs.Validation("password", "password must be at least %d characters", minPasswordLength)
	}
	if role != "" && role != models.RoleAdmin && role != models.RoleCashier {
		return nil, errs.Validation("role", "unknown role %q", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return nil, err
	}

	var user models.User
	for attempt := 1; ; attempt++ {
		user, err = u.create(ctx, username, string(hash), role)
		if err == nil {
			break
		}
		// a racing registration took the bootstrap admin slot; count again
		if errors.Is(err, errFirstAdminTaken) && attempt < 2 {
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, errFirstAdminTaken) {
			return nil, &errs.ConflictError{Message: "username is taken"}
		}
		return nil, database.Classify("register", err)
	}
	u.log.Info().Uint("user_id", user.ID).Str("role", user.Role).Msg("user registered")
	return &user, nil
}

var errFirstAdminTaken = errors.New("auth: first admin already exists")

func (u *Users) create(ctx context.Context, username, hash, role string) (models.User, error) {
	user := models.User{Username: username, PasswordHash: hash, Role: role}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.Role == "" {
			var n int64
			if err := tx.Model(&models.User{}).Count(&n).Error; err != nil {
				return err
			}
			user.Role = models.RoleCashier
			if n == 0 {
				one := 1
				user.Role = models.RoleAdmin
				user.FirstAdmin = &one
			}
		}
		err := tx.Create(&user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) && user.FirstAdmin != nil {
			return errFirstAdminTaken
		}
		return err
	})
	return user, err
}
