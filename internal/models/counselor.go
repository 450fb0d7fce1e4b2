package models

import (
	"time"

	"github.com/google/uuid"
)

// Counselor is the availability record of a counselor. BusySessionID is set
// exactly when IsAvailable is false.
type Counselor struct {
	ID            uuid.UUID  `db:"id"`
	DisplayName   string     `db:"display_name"`
	IsAvailable   bool       `db:"is_available"`
	BusySessionID *uuid.UUID `db:"busy_session_id"`
	UpdatedAt     time.Time  `db:"updated_at"`
}
