package models

// LockInfo is the holder metadata stored in a stack lock file.
type LockInfo struct {
	PID   int    `json:"pid"`
	Time  string `json:"time"`
	Stack string `json:"stack"`
}
