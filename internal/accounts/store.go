// Package accounts keeps the local copy of user profiles.
// The account system owns identities; we only mirror the fields chat needs (name, email,
// avatar) and create the row the first time a user shows up with a valid token.
package accounts

import (
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trentd187/chat-relay/internal/auth"
	"github.com/trentd187/chat-relay/internal/models"
)

// ErrUserNotFound is returned by lookups for ids we have never seen.
var ErrUserNotFound = errors.New("user not found")

// Store reads and writes users with GORM.
type Store struct {
	db *gorm.DB
}

// NewStore wraps db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindOrCreate is "lazy user sync": the first authenticated request from a user creates
// their row from the token's profile claims; later requests just load it.
// Missing claims fall back to deterministic placeholders so the unique email holds.
func (s *Store) FindOrCreate(identity *auth.Identity) (*models.User, error) {
	user := models.User{
		ID:    identity.UserID,
		Name:  identity.Name,
		Email: identity.Email,
	}
	if user.Name == "" {
		user.Name = "User"
	}
	if user.Email == "" {
		user.Email = fmt.Sprintf("user-%d@accounts.local", identity.UserID)
	}

	// ON CONFLICT DO NOTHING keeps two concurrent first requests from racing on the insert
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return s.ByID(identity.UserID)
}

// ByID loads one user.
func (s *Store) ByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "load user")
	}
	return &user, nil
}

// ByIDs loads the users with the given ids, ordered by id. Unknown ids are skipped.
func (s *Store) ByIDs(ids []uint) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	return users, nil
}
