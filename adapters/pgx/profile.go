package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jadapache/raices-vivas/core"
)

const profileColumns = `id, email, full_name, role, community_name, phone, avatar_url, created_at, updated_at`

func scanProfile(row pgx.Row) (*core.Profile, error) {
	p := &core.Profile{}
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.CommunityName, &p.Phone, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a *Adapter) CreateProfile(ctx context.Context, p *core.Profile) error {
	query := `INSERT INTO profiles (id, email, full_name, role, community_name, phone, avatar_url)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING created_at, updated_at`
	err := a.pool.QueryRow(ctx, query,
		p.ID, p.Email, p.FullName, p.Role, p.CommunityName, p.Phone, p.AvatarURL,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrUserExists
		}
		return err
	}
	return nil
}

// GetProfileByID returns the stored role verbatim, known or not.
func (a *Adapter) GetProfileByID(ctx context.Context, id string) (*core.Profile, error) {
	p, err := scanProfile(a.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, core.ErrProfileNotFound)
	}
	return p, nil
}

// UpdateProfile leaves nil fields untouched and clears optional fields set
// to the empty string.
func (a *Adapter) UpdateProfile(ctx context.Context, id string, update core.ProfileUpdate) (*core.Profile, error) {
	query := `UPDATE profiles SET
	              full_name      = COALESCE($2, full_name),
	              phone          = CASE WHEN $3::text IS NULL THEN phone ELSE NULLIF($3, '') END,
	              community_name = CASE WHEN $4::text IS NULL THEN community_name ELSE NULLIF($4, '') END,
	              avatar_url     = CASE WHEN $5::text IS NULL THEN avatar_url ELSE NULLIF($5, '') END,
	              updated_at     = now()
	          WHERE id = $1
	          RETURNING ` + profileColumns

	p, err := scanProfile(a.pool.QueryRow(ctx, query,
		id, update.FullName, update.Phone, update.CommunityName, update.AvatarURL,
	))
	if err != nil {
		return nil, notFound(err, core.ErrProfileNotFound)
	}
	return p, nil
}
