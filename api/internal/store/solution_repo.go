package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"homework-mentor/api/internal/util"
)

type SolutionRepo struct{ DB *sql.DB }

func NewSolutionRepo(db *sql.DB) *SolutionRepo { return &SolutionRepo{DB: db} }

// Key identifies one solved question for one engine/model.
type Key struct {
	Text     string
	File     []byte
	Language string
	Subject  string
	Engine   string
	Model    string
}

// Hash folds the question body into a single hex digest.
func (k Key) Hash() string {
	return util.ContentHash(
		[]byte(strings.TrimSpace(k.Text)),
		k.File,
		[]byte(k.Language),
		[]byte(k.Subject),
	)
}

const schema = `
create table if not exists solutions_cache (
	content_hash text        not null,
	engine       text        not null,
	model        text        not null,
	solution     text        not null,
	created_at   timestamptz not null default now(),
	primary key (content_hash, engine, model)
)`

func (r *SolutionRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

// Find returns the cached solution for k. A record older than maxAge (when
// maxAge > 0) counts as missing.
func (r *SolutionRepo) Find(ctx context.Context, k Key, maxAge time.Duration) (string, bool, error) {
	const q = `select solution, created_at
	           from solutions_cache
	           where content_hash=$1 and engine=$2 and model=$3`
	var (
		sol string
		ts  time.Time
	)
	err := r.DB.QueryRowContext(ctx, q, k.Hash(), k.Engine, k.Model).Scan(&sol, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return "", false, nil
	}
	return sol, sol != "", nil
}

// Upsert stores or refreshes the solution for k.
func (r *SolutionRepo) Upsert(ctx context.Context, k Key, solution string) error {
	const q = `
insert into solutions_cache(content_hash, engine, model, solution)
values ($1,$2,$3,$4)
on conflict (content_hash, engine, model)
do update set solution=excluded.solution, created_at=now()`
	_, err := r.DB.ExecContext(ctx, q, k.Hash(), k.Engine, k.Model, solution)
	return err
}
