package enum

import (
	"fmt"
	"strings"
)

// Folder is the derived classification of a mirrored message, not a server mailbox.
type Folder string

const (
	FolderClients   Folder = "Clients"
	FolderContacted Folder = "Contacted"
	FolderNew       Folder = "New"
	FolderGeneral   Folder = "General"
)

func (f Folder) String() string {
	return string(f)
}

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "New"
	LeadStatusContacted LeadStatus = "Contacted"
	LeadStatusQualified LeadStatus = "Qualified"
	LeadStatusLost      LeadStatus = "Lost"
)

func (s LeadStatus) String() string {
	return string(s)
}

// Folder maps a lead status onto the folder its mail is filed under.
func (s LeadStatus) Folder() Folder {
	switch {
	case strings.EqualFold(string(s), string(LeadStatusContacted)):
		return FolderContacted
	case strings.EqualFold(string(s), string(LeadStatusNew)):
		return FolderNew
	default:
		return FolderGeneral
	}
}

type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "Active"
	ServiceStatusInactive ServiceStatus = "Inactive"
)

// ParseFolder matches a folder name case-insensitively.
func ParseFolder(value string) (Folder, error) {
	for _, folder := range []Folder{FolderClients, FolderContacted, FolderNew, FolderGeneral} {
		if strings.EqualFold(value, string(folder)) {
			return folder, nil
		}
	}
	return "", fmt.Errorf("unknown folder: %s", value)
}
