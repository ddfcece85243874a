package model

import "time"

// Profile is the mutable owner record reconciled with last-writer-wins.
type Profile struct {
	OwnerID    string    `json:"owner_id"`
	Currency   int64     `json:"currency"`
	Experience int64     `json:"experience"`
	CosmeticID string    `json:"cosmetic_id"`
	UpdatedAt  time.Time `json:"updated_at"`
	SyncState  SyncState `json:"sync_state"`
	// Revision counts local mutations. It is never sent to the remote store.
	Revision int64 `json:"-"`
}

// RemoteProfile is the part of the remote profile copy the reconciler reads
// before deciding whether to overwrite it.
type RemoteProfile struct {
	OwnerID   string
	UpdatedAt time.Time
}

// Grant is the reward applied to a profile for one completed attempt.
type Grant struct {
	Currency   int64 `json:"currency"`
	Experience int64 `json:"experience"`
}

// SelectCosmeticRequest is the payload for changing the selected cosmetic.
type SelectCosmeticRequest struct {
	CosmeticID string `json:"cosmetic_id" binding:"required,min=1,max=64,identifier"`
}
