// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for health reporting and conditional responses in the HTTP layer. Each
// function is context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-nearby-backend/internal/domain"
	"github.com/tbourn/go-nearby-backend/internal/liveness"
)

// PositionStats returns aggregate metadata for the positions table: the
// total number of rows, the number of rows whose stored flag claims online
// AND whose last update is younger than staleWindow (the authoritative
// check), and the greatest last_update_at among all rows.
//
// When the table is empty the returned counts are 0 and maxUpdateAt is nil.
func PositionStats(ctx context.Context, db *gorm.DB, now time.Time, staleWindow time.Duration) (total, online int64, maxUpdateAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Position{})

	if err = q.Count(&total).Error; err != nil {
		return 0, 0, nil, err
	}
	if total == 0 {
		return 0, 0, nil, nil
	}

	cutoff := now.UTC().Add(-staleWindow)
	if err = db.WithContext(ctx).
		Model(&domain.Position{}).
		Where("status = ? AND last_update_at >= ?", liveness.StatusOnline, cutoff).
		Count(&online).Error; err != nil {
		return 0, 0, nil, err
	}

	// Get latest last_update_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastUpdateAt time.Time
	}
	if err = db.WithContext(ctx).
		Model(&domain.Position{}).
		Select("last_update_at").
		Order("last_update_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, 0, nil, err
	}
	return total, online, &row.LastUpdateAt, nil
}

// AnchorStats returns the total and unresolved anchor counts.
func AnchorStats(ctx context.Context, db *gorm.DB) (total, open int64, err error) {
	if err = db.WithContext(ctx).Model(&domain.Anchor{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = db.WithContext(ctx).
		Model(&domain.Anchor{}).
		Where("resolved = ?", false).
		Count(&open).Error; err != nil {
		return 0, 0, err
	}
	return total, open, nil
}
