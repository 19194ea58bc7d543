package pgx

import (
	"context"

	"github.com/google/uuid"

	"github.com/jadapache/raices-vivas/core"
)

const userColumns = `id, email, email_verified, name, image, created_at, updated_at`

func (a *Adapter) CreateUser(ctx context.Context, user *core.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	query := `INSERT INTO users (id, email, email_verified, name, image) VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`

	err := a.pool.QueryRow(ctx, query, user.ID, user.Email, user.EmailVerified, user.Name, user.Image).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	return nil
}

func (a *Adapter) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	return a.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (a *Adapter) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return a.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (a *Adapter) getUser(ctx context.Context, query, arg string) (*core.User, error) {
	user := &core.User{}
	err := a.pool.QueryRow(ctx, query, arg).
		Scan(&user.ID, &user.Email, &user.EmailVerified, &user.Name, &user.Image, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, notFound(err, core.ErrUserNotFound)
	}
	return user, nil
}

func (a *Adapter) UpdateUser(ctx context.Context, user *core.User) error {
	q := `UPDATE users SET email = $1, email_verified = $2, name = $3, image = $4, updated_at = now() WHERE id = $5 RETURNING updated_at`
	err := a.pool.QueryRow(ctx, q, user.Email, user.EmailVerified, user.Name, user.Image, user.ID).Scan(&user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return notFound(err, core.ErrUserNotFound)
	}
	return nil
}

// DeleteUser cascades to accounts, sessions and the profile.
func (a *Adapter) DeleteUser(ctx context.Context, id string) error {
	tag, err := a.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUserNotFound
	}
	return nil
}
