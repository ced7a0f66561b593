//go:build !gormsqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "eventbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// markBatch bounds the IN (...) list of a single update.
const markBatch = 500

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite out of SQLITE_BUSY territory.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ms(t time.Time) int64 { return nowIfZero(t).UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v) }

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ---- users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, username, first_name, last_name, created_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name`,
		u.ID, nullStr(u.Username), nullStr(u.FirstName), nullStr(u.LastName), ms(u.CreatedAt),
	)
	return err
}

func (s *sqliteStore) SetRemembers(ctx context.Context, userID int64, remembers bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user_id, remembers, created_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET remembers = excluded.remembers`,
		userID, boolInt(remembers), ms(time.Time{}),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

type userCols struct {
	username, first, last sql.NullString
	remembers             sql.NullInt64
	created               sql.NullInt64
}

func (c userCols) user(id int64) User {
	u := User{ID: id, Username: c.username.String, FirstName: c.first.String, LastName: c.last.String}
	if c.remembers.Valid {
		v := c.remembers.Int64 != 0
		u.Remembers = &v
	}
	if c.created.Valid {
		u.CreatedAt = fromMS(c.created.Int64)
	}
	return u
}

func (s *sqliteStore) GetUser(ctx context.Context, userID int64) (User, bool, error) {
	var c userCols
	err := s.db.QueryRowContext(ctx,
		`SELECT username, first_name, last_name, remembers, created_at FROM users WHERE user_id = ?`, userID,
	).Scan(&c.username, &c.first, &c.last, &c.remembers, &c.created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return c.user(userID), true, nil
}

func (s *sqliteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

func (s *sqliteStore) queryIDs(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- greetings ----

func (s *sqliteStore) AddGreeting(ctx context.Context, g Greeting) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO greetings(user_id, kind, content, delivered, created_at) VALUES(?,?,?,0,?)`,
		g.UserID, string(g.Kind), g.Content, ms(g.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const greetingSelect = `SELECT g.id, g.user_id, g.kind, g.content, g.delivered, g.created_at,
       u.username, u.first_name, u.last_name, u.remembers, u.created_at
  FROM greetings g LEFT JOIN users u ON u.user_id = g.user_id`

func (s *sqliteStore) queryGreetings(ctx context.Context, q string, args ...any) ([]SenderGreeting, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SenderGreeting
	for rows.Next() {
		var (
			g         SenderGreeting
			kind      string
			delivered int
			created   int64
			c         userCols
		)
		if err := rows.Scan(&g.ID, &g.UserID, &kind, &g.Content, &delivered, &created,
			&c.username, &c.first, &c.last, &c.remembers, &c.created); err != nil {
			return nil, err
		}
		g.Kind = GreetingKind(kind)
		g.Delivered = delivered != 0
		g.CreatedAt = fromMS(created)
		g.Sender = c.user(g.UserID)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PendingGreetings(ctx context.Context) ([]SenderGreeting, error) {
	return s.queryGreetings(ctx, greetingSelect+` WHERE g.delivered = 0 ORDER BY g.created_at, g.id`)
}

func (s *sqliteStore) RecentGreetings(ctx context.Context, limit int) ([]SenderGreeting, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryGreetings(ctx, greetingSelect+` ORDER BY g.created_at DESC, g.id DESC LIMIT ?`, limit)
}

func (s *sqliteStore) MarkGreetingDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE greetings SET delivered = 1 WHERE id = ? AND delivered = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) GreetingSenderIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT DISTINCT user_id FROM greetings ORDER BY user_id`)
}

// ---- media ----

func (s *sqliteStore) AddMedia(ctx context.Context, m MediaItem) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO media_items(user_id, kind, file_ref, sent, created_at) VALUES(?,?,?,0,?)`,
		m.UserID, string(m.Kind), m.FileRef, ms(m.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) CountUserMedia(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_items WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (s *sqliteStore) queryMedia(ctx context.Context, q string, args ...any) ([]MediaItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MediaItem
	for rows.Next() {
		var (
			m       MediaItem
			kind    string
			sent    int
			created int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &kind, &m.FileRef, &sent, &created); err != nil {
			return nil, err
		}
		m.Kind = MediaKind(kind)
		m.SentToRecipients = sent != 0
		m.CreatedAt = fromMS(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListMedia(ctx context.Context) ([]MediaItem, error) {
	return s.queryMedia(ctx,
		`SELECT id, user_id, kind, file_ref, sent, created_at FROM media_items ORDER BY created_at, id`)
}

func (s *sqliteStore) UnsentMedia(ctx context.Context) ([]MediaItem, error) {
	return s.queryMedia(ctx,
		`SELECT id, user_id, kind, file_ref, sent, created_at FROM media_items WHERE sent = 0 ORDER BY created_at, id`)
}

func (s *sqliteStore) MarkMediaSent(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for start := 0; start < len(ids); start += markBatch {
		end := min(start+markBatch, len(ids))
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		q := `UPDATE media_items SET sent = 1 WHERE sent = 0 AND id IN (?` +
			strings.Repeat(",?", len(batch)-1) + `)`
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, tx.Commit()
}

// ---- songs ----

func (s *sqliteStore) AddSong(ctx context.Context, song SongSuggestion) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO songs(user_id, text, created_at) VALUES(?,?,?)`,
		song.UserID, song.Text, ms(song.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListSongs(ctx context.Context) ([]SongEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.text, s.created_at,
		        u.username, u.first_name, u.last_name, u.remembers, u.created_at
		   FROM songs s LEFT JOIN users u ON u.user_id = s.user_id
		  ORDER BY s.created_at DESC, s.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SongEntry
	for rows.Next() {
		var (
			e       SongEntry
			created int64
			c       userCols
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Text, &created,
			&c.username, &c.first, &c.last, &c.remembers, &c.created); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMS(created)
		e.Sender = c.user(e.UserID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- wishlist ----

func (s *sqliteStore) AddWishlistItem(ctx context.Context, text string, createdBy int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wishlist(text, created_by, created_at) VALUES(?,?,?)`,
		text, createdBy, ms(time.Time{}),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListWishlist(ctx context.Context) ([]WishlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, created_by, created_at FROM wishlist ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WishlistEntry
	for rows.Next() {
		var (
			e       WishlistEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Text, &e.CreatedBy, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteWishlistItem(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wishlist WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ---- attendance ----

func (s *sqliteStore) ConfirmAttendance(ctx context.Context, userID int64) (bool, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO attendance(user_id, confirmed_at) VALUES(?,?) ON CONFLICT(user_id) DO NOTHING`,
		userID, ms(time.Time{}),
	)
	if err != nil {
		return false, 0, err
	}
	n, _ := res.RowsAffected()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&count); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return n > 0, count, nil
}

func (s *sqliteStore) AttendanceCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance`).Scan(&n)
	return n, err
}

func (s *sqliteStore) ListAttendance(ctx context.Context) ([]Attendee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.user_id, a.confirmed_at, u.username, u.first_name, u.last_name, u.remembers, u.created_at
		   FROM attendance a LEFT JOIN users u ON u.user_id = a.user_id
		  ORDER BY a.confirmed_at, a.user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attendee
	for rows.Next() {
		var (
			id, at int64
			c      userCols
		)
		if err := rows.Scan(&id, &at, &c.username, &c.first, &c.last, &c.remembers, &c.created); err != nil {
			return nil, err
		}
		out = append(out, Attendee{User: c.user(id), ConfirmedAt: fromMS(at)})
	}
	return out, rows.Err()
}

// ---- welcome photos ----

func (s *sqliteStore) SetWelcomePhoto(ctx context.Context, p WelcomePhoto) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE welcome_photos SET active = 0 WHERE category = ? AND active = 1`, string(p.Category)); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO welcome_photos(category, file_ref, caption, active, created_at) VALUES(?,?,?,1,?)`,
		string(p.Category), p.FileRef, nullStr(p.Caption), ms(p.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func scanWelcome(r rowScanner) (WelcomePhoto, error) {
	var (
		p       WelcomePhoto
		cat     string
		caption sql.NullString
		active  int
		created int64
	)
	if err := r.Scan(&p.ID, &cat, &p.FileRef, &caption, &active, &created); err != nil {
		return WelcomePhoto{}, err
	}
	p.Category = PhotoCategory(cat)
	p.Caption = caption.String
	p.Active = active != 0
	p.CreatedAt = fromMS(created)
	return p, nil
}

func (s *sqliteStore) ActiveWelcomePhoto(ctx context.Context, cat PhotoCategory) (WelcomePhoto, bool, error) {
	p, err := scanWelcome(s.db.QueryRowContext(ctx,
		`SELECT id, category, file_ref, caption, active, created_at FROM welcome_photos
		  WHERE category = ? AND active = 1 ORDER BY id DESC LIMIT 1`, string(cat)))
	if errors.Is(err, sql.ErrNoRows) {
		return WelcomePhoto{}, false, nil
	}
	if err != nil {
		return WelcomePhoto{}, false, err
	}
	return p, true, nil
}

func (s *sqliteStore) ListWelcomePhotos(ctx context.Context) ([]WelcomePhoto, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, file_ref, caption, active, created_at FROM welcome_photos ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WelcomePhoto
	for rows.Next() {
		p, err := scanWelcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- stats ----

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM users WHERE remembers = 1),
		(SELECT COUNT(*) FROM users WHERE remembers = 0),
		(SELECT COUNT(*) FROM users WHERE remembers IS NULL),
		(SELECT COUNT(*) FROM greetings),
		(SELECT COUNT(*) FROM greetings WHERE delivered = 1),
		(SELECT COUNT(*) FROM media_items),
		(SELECT COUNT(*) FROM media_items WHERE sent = 1),
		(SELECT COUNT(*) FROM songs),
		(SELECT COUNT(*) FROM wishlist),
		(SELECT COUNT(*) FROM attendance)`).Scan(
		&st.Users, &st.RemembersYes, &st.RemembersNo, &st.RemembersUnknown,
		&st.Greetings, &st.GreetingsDelivered, &st.Media, &st.MediaSent,
		&st.Songs, &st.Wishlist, &st.Attendance,
	)
	return st, err
}
