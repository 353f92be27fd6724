package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/parleychat/parley/store"
)

const messageFields = "id, room_id, content, user_id, user_name, user_avatar_url, requester_id, is_private, created_ts, deleted_ts"

func (d *DB) CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().UnixMilli()
	}
	create.CreatedAt = time.UnixMilli(create.CreatedTs).UTC().Format(time.RFC3339Nano)

	fields := []string{"id", "room_id", "content", "user_id", "user_name", "user_avatar_url", "requester_id", "is_private", "created_ts"}
	args := []any{create.ID, create.RoomID, create.Content, create.User.ID, create.User.Name, create.User.AvatarURL, create.RequesterID, create.IsPrivate, create.CreatedTs}
	stmt := `INSERT INTO chat_message (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to create chat_message: %w", err)
	}

	return create, nil
}

func (d *DB) ListChatMessages(ctx context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.RoomID != nil {
		where, args = append(where, "room_id = ?"), append(args, *find.RoomID)
	}
	if find.ExcludeDeleted {
		where = append(where, "deleted_ts = 0")
	}

	query := `SELECT ` + messageFields + ` FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
	}

	return d.queryMessages(ctx, query, args...)
}

func (d *DB) ListChatMessagesAfter(ctx context.Context, roomID, afterID, upToID string) ([]*store.ChatMessage, error) {
	afterTs, afterOK, err := d.messageTs(ctx, afterID)
	if err != nil {
		return nil, err
	}
	upToTs, upToOK, err := d.messageTs(ctx, upToID)
	if err != nil {
		return nil, err
	}

	where := []string{"room_id = ?", "deleted_ts = 0"}
	args := []any{roomID}

	// An unknown after pointer degrades to replaying from the start of the
	// bounded range rather than failing the catch-up.
	if afterOK {
		where = append(where, "(created_ts > ? OR (created_ts = ? AND id > ?))")
		args = append(args, afterTs, afterTs, afterID)
	}
	if upToOK {
		where = append(where, "(created_ts < ? OR (created_ts = ? AND id <= ?))")
		args = append(args, upToTs, upToTs, upToID)
	}

	query := `SELECT ` + messageFields + ` FROM chat_message WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	return d.queryMessages(ctx, query, args...)
}

func (d *DB) ListRecentChatMessages(ctx context.Context, roomID string, limit int) ([]*store.ChatMessage, error) {
	query := `SELECT ` + messageFields + ` FROM (
		SELECT ` + messageFields + ` FROM chat_message WHERE room_id = ? AND deleted_ts = 0 ORDER BY created_ts DESC, id DESC LIMIT ?
	) ORDER BY created_ts ASC, id ASC`
	return d.queryMessages(ctx, query, roomID, limit)
}

func (d *DB) UpdateChatMessageContent(ctx context.Context, id, content string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE chat_message SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("failed to update chat_message content: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (d *DB) MarkChatMessageDeleted(ctx context.Context, delete *store.DeleteChatMessage) (int64, error) {
	deletedTs := time.Now().UnixMilli()
	result, err := d.db.ExecContext(ctx, `UPDATE chat_message SET deleted_ts = ? WHERE id = ? AND deleted_ts = 0`, deletedTs, delete.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark chat_message deleted: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return 0, sql.ErrNoRows
	}
	return deletedTs, nil
}

// messageTs resolves a message id to its created_ts. The second return is
// false when the id is empty or unknown.
func (d *DB) messageTs(ctx context.Context, id string) (int64, bool, error) {
	if id == "" {
		return 0, false, nil
	}
	var ts int64
	err := d.db.QueryRowContext(ctx, `SELECT created_ts FROM chat_message WHERE id = ?`, id).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve message ts: %w", err)
	}
	return ts, true, nil
}

func (d *DB) queryMessages(ctx context.Context, query string, args ...any) ([]*store.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat_messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ChatMessage, 0)
	for rows.Next() {
		message := &store.ChatMessage{}
		if err := rows.Scan(
			&message.ID, &message.RoomID, &message.Content,
			&message.User.ID, &message.User.Name, &message.User.AvatarURL,
			&message.RequesterID, &message.IsPrivate, &message.CreatedTs, &message.DeletedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat_message: %w", err)
		}
		message.CreatedAt = time.UnixMilli(message.CreatedTs).UTC().Format(time.RFC3339Nano)
		message.IsDeleted = message.DeletedTs != 0
		list = append(list, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat_messages: %w", err)
	}

	return list, nil
}
