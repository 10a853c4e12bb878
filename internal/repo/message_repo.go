// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: short utterances scoped to a help-request anchor.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
)

// CreateMessage inserts a message from senderID under anchorID.
func CreateMessage(ctx context.Context, db *gorm.DB, anchorID, senderID, body string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		AnchorID:  anchorID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// CountMessages returns the total number of messages under anchorID.
func CountMessages(ctx context.Context, db *gorm.DB, anchorID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("anchor_id = ?", anchorID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of messages for anchorID in ascending
// creation order (oldest first, conversation order). The caller computes
// offset and limit.
func ListMessagesPage(ctx context.Context, db *gorm.DB, anchorID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("anchor_id = ?", anchorID).
		Order("created_at asc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
