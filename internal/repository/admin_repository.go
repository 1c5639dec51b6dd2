package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// AdminRepo answers admin-membership questions.
type AdminRepo struct{ DB *sqlx.DB }

func NewAdminRepo(db *sqlx.DB) *AdminRepo { return &AdminRepo{DB: db} }

// IsAdmin reports whether userID is listed in the admins table.
func (r *AdminRepo) IsAdmin(ctx context.Context, userID uint64) (bool, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM admins WHERE user_id=?", userID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Grant makes userID an admin. Granting twice is not an error.
func (r *AdminRepo) Grant(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "INSERT INTO admins (user_id) VALUES (?)", userID)
	if isDuplicate(err) {
		return nil
	}
	return err
}
