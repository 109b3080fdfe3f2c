package enum

import "fmt"

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusError   SyncStatus = "error"
)

func (s SyncStatus) String() string {
	return string(s)
}

func (s SyncStatus) Validate() error {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusError:
		return nil
	}
	return fmt.Errorf("invalid sync status %q", string(s))
}

type ConnectionStatus string

const (
	ConnectionStatusConnecting ConnectionStatus = "connecting"
	ConnectionStatusConnected  ConnectionStatus = "connected"
	ConnectionStatusRetrying   ConnectionStatus = "retrying"
)

func (s ConnectionStatus) String() string {
	return string(s)
}
