package dto

import "time"

// FetchedMessage is the raw result of fetching one UID.
type FetchedMessage struct {
	UID          uint32
	Flags        []string
	InternalDate time.Time
	Raw          []byte
}
