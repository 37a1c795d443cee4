package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tutorhub/internal/models"
	"tutorhub/internal/rooms"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, community_id, private_chat_id, sender, content, sent_at, status, image_url`

// MessageRepository stores and replays chat messages.
type MessageRepository interface {
	Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	CommunityHistory(ctx context.Context, communityID string, limit int) ([]models.ChatMessage, error)
	PrivateHistory(ctx context.Context, privateChatID string, limit int) ([]models.ChatMessage, error)
	LatestPrivateChatsForTutor(ctx context.Context, tutorID string) ([]models.ChatMessage, error)
	UpdateStatus(ctx context.Context, messageID, status string) (models.ChatMessage, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

// Save inserts a message, assigning an id, a timestamp and the default status when absent.
func (r *MessageRepo) Save(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if err := msg.Validate(); err != nil {
		return models.ChatMessage{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = r.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}

	var saved models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_messages (`+messageColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+messageColumns,
		msg.ID, msg.CommunityID, msg.PrivateChatID, msg.Sender, msg.Content, msg.Timestamp, msg.Status, msg.ImageURL).
		StructScan(&saved)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return saved, nil
}

// CommunityHistory returns the latest limit messages of a community, oldest first.
func (r *MessageRepo) CommunityHistory(ctx context.Context, communityID string, limit int) ([]models.ChatMessage, error) {
	return r.history(ctx, "community_id", communityID, limit)
}

// PrivateHistory returns the latest limit messages of a private chat, oldest first.
func (r *MessageRepo) PrivateHistory(ctx context.Context, privateChatID string, limit int) ([]models.ChatMessage, error) {
	return r.history(ctx, "private_chat_id", privateChatID, limit)
}

func (r *MessageRepo) history(ctx context.Context, column, id string, limit int) ([]models.ChatMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + `
            FROM chat_messages
            WHERE ` + column + ` = $1
            ORDER BY sent_at DESC
            LIMIT $2
        ) recent
        ORDER BY sent_at ASC`
	msgs := []models.ChatMessage{}
	if err := r.db.SelectContext(ctx, &msgs, query, id, limit); err != nil {
		return nil, fmt.Errorf("load %s history: %w", column, err)
	}
	return msgs, nil
}

// LatestPrivateChatsForTutor returns the most recent message of every private
// chat the tutor takes part in, newest first.
func (r *MessageRepo) LatestPrivateChatsForTutor(ctx context.Context, tutorID string) ([]models.ChatMessage, error) {
	query := `SELECT DISTINCT ON (private_chat_id) ` + messageColumns + `
        FROM chat_messages
        WHERE private_chat_id LIKE $1 ESCAPE '\'
        ORDER BY private_chat_id, sent_at DESC`
	var rows []models.ChatMessage
	if err := r.db.SelectContext(ctx, &rows, query, tutorChatPattern(tutorID)); err != nil {
		return nil, fmt.Errorf("load tutor chats: %w", err)
	}

	latest := make([]models.ChatMessage, 0, len(rows))
	for _, m := range rows {
		if m.PrivateChatID == nil {
			continue
		}
		t, err := rooms.ParsePrivateChatID(*m.PrivateChatID)
		if err != nil || t.TutorID != tutorID {
			continue
		}
		latest = append(latest, m)
	}
	sort.SliceStable(latest, func(i, j int) bool {
		return latest[i].Timestamp.After(latest[j].Timestamp)
	})
	return latest, nil
}

// UpdateStatus sets the delivery status of a message and returns the updated row.
func (r *MessageRepo) UpdateStatus(ctx context.Context, messageID, status string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := r.db.QueryRowxContext(ctx, `UPDATE chat_messages SET status = $2 WHERE id = $1 RETURNING `+messageColumns, messageID, status).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, ErrMessageNotFound
	}
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("update message status: %w", err)
	}
	return msg, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func tutorChatPattern(tutorID string) string {
	return `private\_%\_%\_` + likeEscaper.Replace(tutorID)
}
