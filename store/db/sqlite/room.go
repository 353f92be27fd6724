package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parleychat/parley/store"
)

func (d *DB) CreateRoom(ctx context.Context, create *store.Room) (*store.Room, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().UnixMilli()
	}

	fields := []string{"id", "name", "creator_id", "created_ts"}
	args := []any{create.ID, create.Name, create.CreatorID, create.CreatedTs}
	stmt := `INSERT INTO room (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return create, nil
}

func (d *DB) ListRooms(ctx context.Context, find *store.FindRoom) ([]*store.Room, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}

	query := `SELECT id, name, creator_id, created_ts FROM room WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Room, 0)
	for rows.Next() {
		room := &store.Room{}
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatorID, &room.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		list = append(list, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	return list, nil
}

func (d *DB) DeleteRoom(ctx context.Context, delete *store.DeleteRoom) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM chat_message WHERE room_id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete room messages: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, `DELETE FROM room WHERE id = ?`, delete.ID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}
