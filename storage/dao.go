package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zefrenchwan/txl.git/contexts"
	"github.com/zefrenchwan/txl.git/revisions"
	"github.com/zefrenchwan/txl.git/store"
	"github.com/zefrenchwan/txl.git/terms"
	"github.com/zefrenchwan/txl.git/validity"
)

//go:embed schema.sql
var schema string

// Dao defines all database operations
type Dao struct {
	// pool to deal with multiple connections
	pool *pgxpool.Pool
}

// NewDao builds a new dao to connect a database via its url
func NewDao(ctx context.Context, url string) (Dao, error) {
	var dao Dao
	if pool, errPool := pgxpool.New(ctx, url); errPool != nil {
		return dao, errors.Wrap(errPool, "dao creation failed")
	} else {
		dao.pool = pool
	}

	return dao, nil
}

// Close closes the dao and the underlying pool
func (d *Dao) Close() {
	if d != nil && d.pool != nil {
		d.pool.Close()
	}
}

// Ping tests the connection to the database
func (d *Dao) Ping(ctx context.Context) error {
	if d == nil || d.pool == nil {
		return errors.New("nil value")
	}

	return d.pool.Ping(ctx)
}

// Migrate creates schemas, tables and functions if they do not exist
func (d *Dao) Migrate(ctx context.Context) error {
	if d == nil || d.pool == nil {
		return errors.New("nil value")
	}

	_, err := d.pool.Exec(ctx, schema)
	return errors.Wrap(err, "migration failed")
}

// CheckUser returns true if login and password match
func (d *Dao) CheckUser(ctx context.Context, login, password string) (bool, error) {
	if d == nil || d.pool == nil {
		return false, errors.New("nil value")
	}

	var result bool
	if err := d.pool.QueryRow(ctx, "select susers.test_user_password($1, $2)", login, password).Scan(&result); err != nil {
		return false, err
	}

	return result, nil
}

// FindSecretForActiveUser returns the secret for an active user
func (d *Dao) FindSecretForActiveUser(ctx context.Context, login string) (string, error) {
	if d == nil || d.pool == nil {
		return "", errors.New("nil value")
	}

	var result string
	if err := d.pool.QueryRow(ctx, "select susers.find_secret_for_user($1)", login).Scan(&result); err != nil {
		return result, err
	}

	return result, nil
}

// UpsertUser changes user authentication if it exists, or insert user.
// An empty creator means a system creation
func (d *Dao) UpsertUser(ctx context.Context, creator, login, password string) error {
	if d == nil || d.pool == nil {
		return errors.New("nil value")
	}

	var creatorValue *string
	if creator != "" {
		creatorValue = &creator
	}

	_, errExec := d.pool.Exec(ctx, "call susers.upsert_user($1,$2,$3)", creatorValue, login, password)
	return errExec
}

// SaveCommit persists a revision: new terms, then the full content of each changed context.
// All or nothing
func (d *Dao) SaveCommit(ctx context.Context, commit store.Commit) error {
	if d == nil || d.pool == nil {
		return errors.New("nil value")
	}

	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"insert into stxl.revisions(revision_id, predecessor_id, committed_at) values ($1, $2, $3)",
			int64(commit.Revision), int64(commit.Predecessor), commit.Timestamp.UTC(),
		); err != nil {
			return errors.Wrapf(err, "cannot insert revision %d", commit.Revision)
		}

		if len(commit.Terms) != 0 {
			rows := make([][]any, 0, len(commit.Terms))
			for index, term := range commit.Terms {
				rows = append(rows, []any{int64(commit.FirstTermID) + int64(index), term.String()})
			}

			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"stxl", "terms"}, []string{"term_id", "term_value"}, pgx.CopyFromRows(rows)); err != nil {
				return errors.Wrap(err, "cannot insert terms")
			}
		}

		for _, name := range commit.Changed {
			if _, err := tx.Exec(ctx,
				"insert into stxl.context_versions(context_name, revision_id) values ($1, $2)",
				name.String(), int64(commit.Revision),
			); err != nil {
				return errors.Wrapf(err, "cannot insert version of %s", name)
			}

			rows, err := statementsRows(commit.State, name, commit.Revision)
			if err != nil {
				return err
			} else if len(rows) == 0 {
				continue
			}

			columns := []string{"context_name", "revision_id", "subject_id", "predicate_id", "object_id", "validity"}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{"stxl", "statements"}, columns, pgx.CopyFromRows(rows)); err != nil {
				return errors.Wrapf(err, "cannot insert statements of %s", name)
			}
		}

		return nil
	})
}

// statementsRows returns the statements of a context to copy into the database
func statementsRows(state *store.State, name contexts.Name, revision revisions.ID) ([][]any, error) {
	var rows [][]any
	var globalErr error
	state.Scan(name, store.Template{}, func(statement store.Statement, value validity.Set) bool {
		raw, err := json.Marshal(SerializeWindow(value))
		if err != nil {
			globalErr = errors.Join(globalErr, err)
			return true
		}

		rows = append(rows, []any{
			name.String(), int64(revision),
			int64(statement.Subject), int64(statement.Predicate), int64(statement.Object),
			string(raw),
		})

		return true
	})

	return rows, globalErr
}

// StoreContent is the content of the store loaded from the database
type StoreContent struct {
	// Timeline starts at the last saved revision, nil if there is none
	Timeline   *revisions.Timeline[*store.State]
	Dictionary *terms.Dictionary
	// SavedTerms is the last term id in the database
	SavedTerms terms.TermID
}

// LoadHead loads terms and the content of the last saved revision
func (d *Dao) LoadHead(ctx context.Context) (StoreContent, error) {
	var result StoreContent
	if d == nil || d.pool == nil {
		return result, errors.New("nil value")
	}

	result.Dictionary = terms.NewDictionary()
	rowsTerms, errTerms := d.pool.Query(ctx, queryForTerms())
	if errTerms != nil {
		return result, errors.Wrap(errTerms, "cannot load terms")
	}

	errLoad := loadTermsRows(rowsTerms, result.Dictionary)
	rowsTerms.Close()
	if errLoad != nil {
		return result, errLoad
	}

	result.SavedTerms = terms.TermID(result.Dictionary.Len())

	var id, predecessor int64
	var committedAt time.Time
	switch err := d.pool.QueryRow(ctx, queryForHeadRevision()).Scan(&id, &predecessor, &committedAt); {
	case errors.Is(err, pgx.ErrNoRows):
		return result, nil
	case err != nil:
		return result, errors.Wrap(err, "cannot load head revision")
	}

	rowsStatements, errStatements := d.pool.Query(ctx, queryForStatementsAtRevision(), id)
	if errStatements != nil {
		return result, errors.Wrapf(errStatements, "cannot load revision %d", id)
	}

	defer rowsStatements.Close()
	contents, errContents := loadStatementsRows(rowsStatements)
	if errContents != nil {
		return result, errContents
	}

	result.Timeline = revisions.Restore(revisions.ID(id), committedAt, revisions.ID(predecessor), store.RestoreState(contents))
	return result, nil
}
