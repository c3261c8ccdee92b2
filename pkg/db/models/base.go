package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a fresh UUID when the caller left the key empty. Postgres
// falls back to gen_random_uuid(), sqlite has no default so the hook covers it.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (l *GrapeLot) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

func (b *CoreBlend) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

func (r *BottlingRun) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (b *BlendLot) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

func (r *Reservation) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&GrapeLot{},
		&CoreBlend{},
		&BottlingRun{},
		&BlendLot{},
		&Reservation{},
		&OutboxEvent{},
	}
}
