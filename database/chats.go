package database

import (
	"context"
	"database/sql"
	"fmt"

	"campusmart/models"
)

// FindOrCreateChat returns the chat between a and b, creating it if needed.
// The boolean is true when a new chat was created.
func (s *Store) FindOrCreateChat(ctx context.Context, a, b string) (*models.Chat, bool, error) {
	memberA, memberB := models.MemberPair(a, b)
	var chat *models.Chat
	created := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanChat(tx.QueryRowContext(ctx,
			"SELECT id, member_a, member_b, last_message_id, created_at, updated_at FROM chats WHERE member_a = ? AND member_b = ?",
			memberA, memberB,
		))
		if err == nil {
			chat = existing
			return nil
		}
		if err != ErrNotFound {
			return fmt.Errorf("find chat: %w", err)
		}

		for _, id := range []string{memberA, memberB} {
			ok, err := userExists(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("check user: %w", err)
			}
			if !ok {
				return ErrNotFound
			}
		}

		now := toUnix(s.now())
		chat = &models.Chat{
			ID:        newID(),
			Members:   []string{memberA, memberB},
			CreatedAt: fromUnix(now),
			UpdatedAt: fromUnix(now),
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chats (id, member_a, member_b, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			chat.ID, memberA, memberB, now, now,
		); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}

// GetChat retrieves a chat by id without its last message
func (s *Store) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx,
		"SELECT id, member_a, member_b, last_message_id, created_at, updated_at FROM chats WHERE id = ?", id))
}

// ListChatsForUser returns the chats userID belongs to with their last
// message, most recently active first
func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.member_a, c.member_b, c.last_message_id, c.created_at, c.updated_at,
			m.id, m.chat_id, m.sender_id, m.text, m.message_type, m.file_url, m.file_type, m.file_name, m.created_at, m.deleted_at
		FROM chats c
		LEFT JOIN messages m ON m.id = c.last_message_id
		WHERE c.member_a = ? OR c.member_b = ?
		ORDER BY c.updated_at DESC, c.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	var chats []models.Chat
	var lastMessages []models.Message
	for rows.Next() {
		var (
			chat                              models.Chat
			lastID                            sql.NullString
			createdAt, updatedAt              int64
			mID, mChat, mSender, mText        sql.NullString
			mType, mFileURL, mFileType, mName sql.NullString
			mCreated, mDeleted                sql.NullInt64
			memberA, memberB                  string
		)
		if err := rows.Scan(&chat.ID, &memberA, &memberB, &lastID, &createdAt, &updatedAt,
			&mID, &mChat, &mSender, &mText, &mType, &mFileURL, &mFileType, &mName, &mCreated, &mDeleted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.Members = []string{memberA, memberB}
		chat.LastMessageID = lastID.String
		chat.CreatedAt = fromUnix(createdAt)
		chat.UpdatedAt = fromUnix(updatedAt)
		if mID.Valid {
			msg := models.Message{
				ID:        mID.String,
				ChatID:    mChat.String,
				SenderID:  mSender.String,
				Text:      mText.String,
				Type:      models.MessageType(mType.String),
				FileURL:   mFileURL.String,
				FileType:  mFileType.String,
				FileName:  mName.String,
				CreatedAt: fromUnix(mCreated.Int64),
			}
			if mDeleted.Valid {
				at := fromUnix(mDeleted.Int64)
				msg.DeletedAt = &at
			}
			lastMessages = append(lastMessages, msg)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// rows must be closed before the next query, the pool holds one connection
	if err := loadReadBy(ctx, s.db, lastMessages); err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Message, len(lastMessages))
	for i := range lastMessages {
		byID[lastMessages[i].ID] = &lastMessages[i]
	}
	for i := range chats {
		if msg, ok := byID[chats[i].LastMessageID]; ok {
			chats[i].LastMessage = msg
		}
	}
	return chats, nil
}

func scanChat(row interface{ Scan(...any) error }) (*models.Chat, error) {
	chat := &models.Chat{}
	var memberA, memberB string
	var lastID sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&chat.ID, &memberA, &memberB, &lastID, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	chat.Members = []string{memberA, memberB}
	chat.LastMessageID = lastID.String
	chat.CreatedAt = fromUnix(createdAt)
	chat.UpdatedAt = fromUnix(updatedAt)
	return chat, nil
}
