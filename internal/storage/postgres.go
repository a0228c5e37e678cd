package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type PgMessageRepository struct {
	conn *sql.DB
}

func NewPgMessageRepository(dsn string) (*PgMessageRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgMessageRepository{conn: db}, nil
}

func (db *PgMessageRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

func (db *PgMessageRepository) CreateMessage(ctx context.Context, roomID, userID, content string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (id, room_id, user_id, content, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, room_id, user_id, content, created_at, updated_at",
		uuid.NewString(),
		roomID,
		userID,
		content,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.Content,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgMessageRepository) GetMessages(ctx context.Context, params GetMessagesParams) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, room_id, user_id, content, created_at, updated_at FROM messages "+
			"WHERE room_id = $1 AND deleted_at IS NULL "+
			"AND ($2::timestamptz IS NULL OR created_at > $2) "+
			"AND ($3::timestamptz IS NULL OR created_at < $3) "+
			"ORDER BY created_at DESC LIMIT $4",
		params.RoomId,
		nullableTime(params.Since),
		nullableTime(params.Before),
		params.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.UserId,
			&m.Content,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgMessageRepository) UpdateMessage(ctx context.Context, messageID, content string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE messages SET content = $2, updated_at = $3 "+
			"WHERE id = $1 AND deleted_at IS NULL "+
			"RETURNING id, room_id, user_id, content, created_at, updated_at",
		messageID,
		content,
		time.Now().UTC(),
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.UserId,
		&m.Content,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}

	return m, err
}

// DeleteMessage soft-deletes: the row keeps its content but is excluded
// from reads.
func (db *PgMessageRepository) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL",
		messageID,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
