// Package persistence implements the user and post stores on PostgreSQL.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tinywideclouds/go-feed-service/pkg/feed"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Postgres implements feed.UserStore and feed.PostStore over a pgx pool with
// plain SQL.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgres wraps an existing pool. The caller owns the pool's lifecycle.
func NewPostgres(pool *pgxpool.Pool, logger zerolog.Logger) *Postgres {
	return &Postgres{
		pool:   pool,
		logger: logger.With().Str("component", "Postgres").Logger(),
	}
}

// Migrate creates the schema when it does not exist yet. It is idempotent
// and safe to run on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	const schema = `
		create table if not exists users (
			id            uuid primary key default gen_random_uuid(),
			email         text not null unique,
			name          text not null,
			password_hash text not null,
			status        text not null default 'New user',
			created_at    timestamptz not null default now()
		);
		create table if not exists posts (
			id         uuid primary key default gen_random_uuid(),
			title      text not null,
			content    text not null,
			image_url  text not null,
			creator_id uuid not null references users(id) on delete cascade,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		);
		create index if not exists posts_created_at_idx on posts (created_at desc);
	`
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("persistence: migration failed: %w", err)
	}
	return nil
}

// --- feed.UserStore ---

func (p *Postgres) CreateUser(ctx context.Context, user feed.User) (feed.User, error) {
	err := p.pool.QueryRow(ctx, `
		insert into users (email, name, password_hash)
		values ($1, $2, $3)
		returning id, status, created_at
	`, user.Email, user.Name, user.PasswordHash).Scan(&user.ID, &user.Status, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return feed.User{}, feed.ErrDuplicateEmail
		}
		return feed.User{}, fmt.Errorf("persistence: failed to create user: %w", err)
	}
	return user, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (feed.User, error) {
	return p.getUser(ctx, `where email = $1`, email)
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (feed.User, error) {
	return p.getUser(ctx, `where id = $1`, id)
}

func (p *Postgres) getUser(ctx context.Context, where string, arg any) (feed.User, error) {
	var user feed.User
	err := p.pool.QueryRow(ctx, `
		select id, email, name, password_hash, status, created_at
		from users `+where,
		arg,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Status, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.User{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.User{}, fmt.Errorf("persistence: failed to fetch user: %w", err)
	}
	return user, nil
}

func (p *Postgres) UpdateUserStatus(ctx context.Context, id string, status string) error {
	tag, err := p.pool.Exec(ctx, `update users set status = $2 where id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("persistence: failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

// --- feed.PostStore ---

func (p *Postgres) CreatePost(ctx context.Context, post feed.Post, creatorID string) (feed.Post, error) {
	err := p.pool.QueryRow(ctx, `
		with inserted as (
			insert into posts (title, content, image_url, creator_id)
			values ($1, $2, $3, $4)
			returning id, title, content, image_url, creator_id, created_at, updated_at
		)
		select i.id, i.title, i.content, i.image_url, i.created_at, i.updated_at,
		       u.id, u.name, u.email
		from inserted i
		join users u on u.id = i.creator_id
	`, post.Title, post.Content, post.ImageURL, creatorID).Scan(
		&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.CreatedAt, &post.UpdatedAt,
		&post.Creator.ID, &post.Creator.Name, &post.Creator.Email,
	)
	if err != nil {
		return feed.Post{}, fmt.Errorf("persistence: failed to create post: %w", err)
	}
	return post, nil
}

func (p *Postgres) GetPost(ctx context.Context, id string) (feed.Post, error) {
	var post feed.Post
	err := p.pool.QueryRow(ctx, `
		select p.id, p.title, p.content, p.image_url, p.created_at, p.updated_at,
		       u.id, u.name, u.email
		from posts p
		join users u on u.id = p.creator_id
		where p.id = $1
	`, id).Scan(
		&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.CreatedAt, &post.UpdatedAt,
		&post.Creator.ID, &post.Creator.Name, &post.Creator.Email,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Post{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.Post{}, fmt.Errorf("persistence: failed to fetch post: %w", err)
	}
	return post, nil
}

func (p *Postgres) ListPosts(ctx context.Context, page, perPage int) ([]feed.Post, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := p.pool.QueryRow(ctx, `select count(*) from posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("persistence: failed to count posts: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		select p.id, p.title, p.content, p.image_url, p.created_at, p.updated_at,
		       u.id, u.name, u.email
		from posts p
		join users u on u.id = p.creator_id
		order by p.created_at desc
		limit $1 offset $2
	`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("persistence: failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]feed.Post, 0, perPage)
	for rows.Next() {
		var post feed.Post
		err := rows.Scan(
			&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.CreatedAt, &post.UpdatedAt,
			&post.Creator.ID, &post.Creator.Name, &post.Creator.Email,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("persistence: failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("persistence: failed to list posts: %w", err)
	}
	return posts, total, nil
}

func (p *Postgres) UpdatePost(ctx context.Context, post feed.Post) (feed.Post, error) {
	err := p.pool.QueryRow(ctx, `
		with updated as (
			update posts
			set title = $2, content = $3, image_url = $4, updated_at = now()
			where id = $1
			returning id, title, content, image_url, creator_id, created_at, updated_at
		)
		select i.id, i.title, i.content, i.image_url, i.created_at, i.updated_at,
		       u.id, u.name, u.email
		from updated i
		join users u on u.id = i.creator_id
	`, post.ID, post.Title, post.Content, post.ImageURL).Scan(
		&post.ID, &post.Title, &post.Content, &post.ImageURL, &post.CreatedAt, &post.UpdatedAt,
		&post.Creator.ID, &post.Creator.Name, &post.Creator.Email,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Post{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.Post{}, fmt.Errorf("persistence: failed to update post: %w", err)
	}
	return post, nil
}

func (p *Postgres) DeletePost(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `delete from posts where id = $1`, id)
	if err != nil {
		return fmt.Errorf("persistence: failed to delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}
