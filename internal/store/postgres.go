package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kampus/api/internal/report"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const userColumns = `id::text, display_name, email, unit, password_hash, role, is_email_verified,
	COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	var expires sql.NullTime
	err := row.Scan(
		&user.ID, &user.DisplayName, &user.Email, &user.Unit, &user.PasswordHash, &user.Role,
		&user.IsEmailVerified, &user.VerificationToken, &expires, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if expires.Valid {
		t := expires.Time
		user.VerificationExpiresAt = &t
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	role := user.Role
	if role == "" {
		role = RoleUser
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, unit, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7, NULLIF($8, ''))
	`, user.ID, user.DisplayName, user.Email, user.Unit, user.PasswordHash, role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, strings.TrimSpace(email)))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	return user, err
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, err
}

func (s *PostgresStore) SetUserRole(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	return expectAffected(res)
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1
			AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	return expectAffected(res)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id::text FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup password reset: %w", err)
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id::text, u.display_name, u.email, u.unit, u.password_hash, u.role, u.is_email_verified,
			COALESCE(u.verification_token, ''), u.verification_expires_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	return user, err
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

const reportColumns = `r.id::text, r.type, r.title, r.description, r.status, r.latitude, r.longitude, r.created_at,
	COALESCE(r.author_id::text, ''), r.author_name, r.image_key,
	COALESCE((SELECT string_agg(f.user_id::text, ',' ORDER BY f.created_at) FROM report_followers f WHERE f.report_id = r.id), '')`

func scanReport(row rowScanner) (report.Record, error) {
	var (
		rec       report.Record
		category  string
		status    string
		followers string
	)
	err := row.Scan(
		&rec.ID, &category, &rec.Title, &rec.Description, &status, &rec.Latitude, &rec.Longitude,
		&rec.Timestamp, &rec.AuthorID, &rec.AuthorName, &rec.ImageKey, &followers,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Record{}, ErrNotFound
	}
	if err != nil {
		return report.Record{}, err
	}
	rec.Type, _ = report.ParseCategory(category)
	rec.Status = report.Status(status)
	rec.Followers = splitIDs(followers)
	return rec.WithDefaults(), nil
}

func splitIDs(value string) []string {
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}

func (s *PostgresStore) InsertReport(ctx context.Context, rec report.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, type, title, description, status, latitude, longitude, author_id, author_name, image_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9, $10, $11)
	`, rec.ID, rec.Type.Label(), rec.Title, rec.Description, string(rec.Status), rec.Latitude, rec.Longitude,
		rec.AuthorID, rec.AuthorName, rec.ImageKey, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (report.Record, error) {
	rec, err := scanReport(s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports r WHERE r.id = $1`, reportID))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return report.Record{}, fmt.Errorf("get report: %w", err)
	}
	return rec, err
}

// ListReports returns reports newest first.
func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]report.Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		where = append(where, "r.status = "+arg(string(filter.Status)))
	}
	if filter.Type != nil {
		where = append(where, "r.type = "+arg(filter.Type.Label()))
	}
	if filter.AuthorID != "" {
		where = append(where, "r.author_id = "+arg(filter.AuthorID))
	}
	if filter.FollowerID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM report_followers f WHERE f.report_id = r.id AND f.user_id = "+arg(filter.FollowerID)+")")
	}
	if filter.Since != nil {
		where = append(where, "r.created_at >= "+arg(*filter.Since))
	}

	query := `SELECT ` + reportColumns + ` FROM reports r`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := []report.Record{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, reportID string, status report.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET status=$2, updated_at=NOW() WHERE id=$1`, reportID, string(status))
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return expectAffected(res)
}

// DeleteReport removes a report and returns its photo key.
func (s *PostgresStore) DeleteReport(ctx context.Context, reportID string) (string, error) {
	var imageKey string
	err := s.db.QueryRowContext(ctx, `DELETE FROM reports WHERE id=$1 RETURNING image_key`, reportID).Scan(&imageKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete report: %w", err)
	}
	return imageKey, nil
}

func (s *PostgresStore) AddFollower(ctx context.Context, reportID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_followers (report_id, user_id) VALUES ($1, $2)
		ON CONFLICT (report_id, user_id) DO NOTHING
	`, reportID, userID)
	if err != nil {
		return fmt.Errorf("add follower: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveFollower(ctx context.Context, reportID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM report_followers WHERE report_id=$1 AND user_id=$2`, reportID, userID)
	if err != nil {
		return fmt.Errorf("remove follower: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountReportsByAuthor(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE author_id=$1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ReportStats(ctx context.Context) (ReportStats, error) {
	stats := ReportStats{
		ByStatus:   map[report.Status]int{},
		ByCategory: map[report.Category]int{},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, type, COUNT(*) FROM reports GROUP BY status, type`)
	if err != nil {
		return stats, fmt.Errorf("report stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, category string
		var count int
		if err := rows.Scan(&status, &category, &count); err != nil {
			return stats, fmt.Errorf("scan report stats: %w", err)
		}
		c, _ := report.ParseCategory(category)
		stats.ByStatus[report.Status(status)] += count
		stats.ByCategory[c] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) InsertAnnouncement(ctx context.Context, a report.Announcement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO announcements (id, title, message, author_id, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5)
	`, a.ID, a.Title, a.Message, a.AuthorID, a.Timestamp)
	if err != nil {
		return fmt.Errorf("insert announcement: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAnnouncements(ctx context.Context, limit int) ([]report.Announcement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, title, message, COALESCE(author_id::text, ''), created_at
		FROM announcements
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	defer rows.Close()

	items := []report.Announcement{}
	for rows.Next() {
		var a report.Announcement
		if err := rows.Scan(&a.ID, &a.Title, &a.Message, &a.AuthorID, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan announcement: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
