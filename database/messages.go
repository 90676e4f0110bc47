package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samber/lo"

	"campusmart/models"
)

const messageColumns = "id, chat_id, sender_id, text, message_type, file_url, file_type, file_name, created_at, deleted_at"

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var msgType string
	var createdAt int64
	var deletedAt sql.NullInt64
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Text, &msgType,
		&msg.FileURL, &msg.FileType, &msg.FileName, &createdAt, &deletedAt); err != nil {
		return nil, notFound(err)
	}
	msg.Type = models.MessageType(msgType)
	msg.CreatedAt = fromUnix(createdAt)
	if deletedAt.Valid {
		at := fromUnix(deletedAt.Int64)
		msg.DeletedAt = &at
	}
	return msg, nil
}

func queryMessages(ctx context.Context, q queryer, query string, args ...any) ([]models.Message, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// loadReadBy fills ReadBy for every message in msgs, querying the read rows
// in batches that stay under the SQLite variable limit
func loadReadBy(ctx context.Context, q queryer, msgs []models.Message) error {
	index := make(map[string]int, len(msgs))
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
		index[msgs[i].ID] = i
		msgs[i].ReadBy = []string{}
	}

	for _, batch := range lo.Chunk(ids, maxBatchSize) {
		if err := loadReadBatch(ctx, q, batch, func(messageID, userID string) {
			if i, ok := index[messageID]; ok {
				msgs[i].ReadBy = append(msgs[i].ReadBy, userID)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

func loadReadBatch(ctx context.Context, q queryer, ids []string, add func(messageID, userID string)) error {
	rows, err := q.QueryContext(ctx,
		"SELECT message_id, user_id FROM message_reads WHERE message_id IN ("+placeholders(len(ids))+") ORDER BY read_at, user_id",
		toArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("query reads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("scan read: %w", err)
		}
		add(messageID, userID)
	}
	return rows.Err()
}

// CreateMessage stores msg, marks it read by its sender and moves the chat's
// last message pointer to it, all in one transaction. ID and CreatedAt are
// assigned here.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := toUnix(s.now())
		msg.ID = newID()
		msg.CreatedAt = fromUnix(now)
		if msg.Type == "" {
			msg.Type = models.MessageTypeText
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages ("+messageColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)",
			msg.ID, msg.ChatID, msg.SenderID, msg.Text, string(msg.Type),
			msg.FileURL, msg.FileType, msg.FileName, now,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)",
			msg.ID, msg.SenderID, now,
		); err != nil {
			return fmt.Errorf("insert sender read: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			"UPDATE chats SET last_message_id = ?, updated_at = ? WHERE id = ?",
			msg.ID, now, msg.ChatID,
		)
		if err != nil {
			return fmt.Errorf("update chat: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		msg.ReadBy = []string{msg.SenderID}
		return nil
	})
}

// GetMessage retrieves a message with its read set
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	msgs := []models.Message{*msg}
	if err := loadReadBy(ctx, s.db, msgs); err != nil {
		return nil, err
	}
	return &msgs[0], nil
}

// ListMessages returns up to limit messages of a chat after skipping offset,
// newest first, and the total number of messages in the chat
func (s *Store) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, int, error) {
	var messages []models.Message
	var total int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE chat_id = ?", chatID).Scan(&total); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		var err error
		messages, err = queryMessages(ctx, tx,
			"SELECT "+messageColumns+" FROM messages WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
			chatID, limit, offset,
		)
		if err != nil {
			return err
		}
		return loadReadBy(ctx, tx, messages)
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// SearchMessages finds live messages of a chat whose text contains query,
// ignoring case, newest first
func (s *Store) SearchMessages(ctx context.Context, chatID, query string, limit, offset int) ([]models.Message, error) {
	messages, err := queryMessages(ctx, s.db,
		"SELECT "+messageColumns+` FROM messages
		WHERE chat_id = ? AND deleted_at IS NULL AND contains_fold(text, ?)
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		chatID, query, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	if err := loadReadBy(ctx, s.db, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SoftDeleteMessage tombstones a message. Deleting an already deleted
// message changes nothing. The resulting message is returned.
func (s *Store) SoftDeleteMessage(ctx context.Context, id string) (*models.Message, error) {
	tombstone := models.Message{}
	tombstone.Delete(s.now())

	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET text = ?, deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		tombstone.Text, toUnix(*tombstone.DeletedAt), id,
	)
	if err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Debug("Message already deleted or missing", "message_id", id)
	}
	return s.GetMessage(ctx, id)
}

// MarkChatRead adds userID to the read set of every message in the chat and
// returns how many messages were newly marked
func (s *Store) MarkChatRead(ctx context.Context, chatID, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at) SELECT id, ?, ? FROM messages WHERE chat_id = ?",
		userID, toUnix(s.now()), chatID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread counts messages of the chat not sent by viewerID and not yet read by them
func (s *Store) CountUnread(ctx context.Context, chatID, viewerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = ? AND m.sender_id != ?
		AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)`,
		chatID, viewerID, viewerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
