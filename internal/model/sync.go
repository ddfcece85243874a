package model

// SyncState tracks whether a local row has reached the remote store.
//
//	PENDING -> SYNCED  (push succeeded)
//	PENDING -> FAILED  (push failed, retried next cycle)
//	FAILED  -> PENDING | SYNCED
type SyncState string

const (
	SyncStatePending SyncState = "PENDING"
	SyncStateSynced  SyncState = "SYNCED"
	SyncStateFailed  SyncState = "FAILED"
)

// NeedsPush reports whether the row is eligible for the next push.
func (s SyncState) NeedsPush() bool {
	return s == SyncStatePending || s == SyncStateFailed
}
