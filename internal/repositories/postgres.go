package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/socialnet/backend/internal/db"
	"github.com/socialnet/backend/internal/models"
)

const userColumns = `id, username, firstname, lastname, email, gender, password_hash, roles,
        profile_picture, cover_picture, bio,
        friend_requests_out, friend_requests_in, friends, followers, following,
        created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users and
// their relationship sets.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}

	row := conn.QueryRow(ctx, `
        INSERT INTO users (username, firstname, lastname, email, gender, password_hash, roles, bio)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+userColumns,
		user.Username, user.Firstname, user.Lastname, user.Email, user.Gender, user.PasswordHash, roles, user.Bio)

	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	return created, nil
}

// FindByID fetches a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByUsername fetches a user by username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username = $1", username)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email = $1", email)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// List returns every user ordered by creation time.
func (r *PostgresUserRepository) List(ctx context.Context) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// UpdatePicture records the location of a newly uploaded picture.
func (r *PostgresUserRepository) UpdatePicture(ctx context.Context, id string, kind models.PictureKind, location string) (models.User, error) {
	var column string
	switch kind {
	case models.PictureProfile:
		column = "profile_picture"
	case models.PictureCover:
		column = "cover_picture"
	default:
		return models.User{}, ErrUnknownField
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET `+column+` = $2, updated_at = now()
        WHERE id = $1
        RETURNING `+userColumns, id, location)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update %s: %w", column, err)
	}

	return user, nil
}

// Delete removes the user and strips its id from every relationship set in one transaction.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
        UPDATE users
        SET friend_requests_out = array_remove(friend_requests_out, $1::TEXT),
            friend_requests_in = array_remove(friend_requests_in, $1::TEXT),
            friends = array_remove(friends, $1::TEXT),
            followers = array_remove(followers, $1::TEXT),
            following = array_remove(following, $1::TEXT),
            updated_at = now()
        WHERE $1::TEXT = ANY(friend_requests_out)
           OR $1::TEXT = ANY(friend_requests_in)
           OR $1::TEXT = ANY(friends)
           OR $1::TEXT = ANY(followers)
           OR $1::TEXT = ANY(following)
    `, id); err != nil {
		return fmt.Errorf("remove user references: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

// ApplyRelations locks both rows, evaluates plan and writes its changes in one transaction.
func (r *PostgresUserRepository) ApplyRelations(ctx context.Context, userID, otherID string, plan models.RelationPlan) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin relationship update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Rows are locked in id order so concurrent transitions on the same pair
	// cannot deadlock.
	rows, err := tx.Query(ctx, `
        SELECT id, friend_requests_out, friend_requests_in, friends, followers, following
        FROM users
        WHERE id = ANY($1)
        ORDER BY id
        FOR UPDATE
    `, []string{userID, otherID})
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}

	loaded := make(map[string]models.Relations, 2)
	for rows.Next() {
		var (
			id  string
			rel models.Relations
		)
		if err := rows.Scan(&id, &rel.FriendRequestsOut, &rel.FriendRequestsIn, &rel.Friends, &rel.Followers, &rel.Following); err != nil {
			rows.Close()
			return fmt.Errorf("scan relations: %w", err)
		}
		loaded[id] = rel.Normalized()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate relations: %w", err)
	}

	user, ok := loaded[userID]
	if !ok {
		return ErrNotFound
	}
	other, ok := loaded[otherID]
	if !ok {
		return ErrNotFound
	}

	changes, err := plan(user, other)
	if err != nil {
		return err
	}

	for _, change := range changes {
		if err := applyChange(ctx, tx, loaded, change); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit relationship update: %w", err)
	}
	return nil
}

func applyChange(ctx context.Context, tx pgx.Tx, locked map[string]models.Relations, change models.RelationChange) error {
	if !validField(change.Field) {
		return ErrUnknownField
	}
	if _, ok := locked[change.UserID]; !ok {
		return ErrNotFound
	}

	// The column name comes from the fixed set of relation fields checked above.
	column := string(change.Field)
	query := `UPDATE users SET ` + column + ` = array_append(` + column + `, $2::TEXT), updated_at = now()
        WHERE id = $1 AND NOT ($2::TEXT = ANY(` + column + `))`
	if change.Remove {
		query = `UPDATE users SET ` + column + ` = array_remove(` + column + `, $2::TEXT), updated_at = now()
        WHERE id = $1`
	}

	if _, err := tx.Exec(ctx, query, change.UserID, change.Target); err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Firstname, &user.Lastname, &user.Email, &user.Gender,
		&user.PasswordHash, &user.Roles, &user.ProfilePicture, &user.CoverPicture, &user.Bio,
		&user.FriendRequestsOut, &user.FriendRequestsIn, &user.Friends, &user.Followers, &user.Following,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	user.Relations = user.Relations.Normalized()
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ RelationshipRepository = (*PostgresUserRepository)(nil)
