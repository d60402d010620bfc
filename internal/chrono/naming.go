package chrono

import (
	"strings"
	"time"
)

// Backup file naming. The file name alone identifies a backup:
//
//	<Name>_<timestamp>_<id>[_RESTORE][_PINNED].zip
//
// RESTORE marks a safety backup taken automatically before a paste; PINNED
// marks a backup exempt from retention eviction. Pinning renames the file
// rather than rewriting the archive, so archives stay immutable.
const (
	// BackupFileExt is the archive extension for backup files.
	BackupFileExt = ".zip"
	// BackupTimeFormat is the timestamp layout used in backup file names.
	BackupTimeFormat = "20060102-150405"
	// DisplayTimeFormat is the layout used in backup listings.
	DisplayTimeFormat = "02/01/06 15:04"

	pasteIdent  = "RESTORE"
	pinnedIdent = "PINNED"
)

// Origin describes how a backup came to exist.
type Origin string

const (
	// OriginManual marks a backup the user asked for.
	OriginManual Origin = "manual"
	// OriginAutoPaste marks a safety backup taken before a paste.
	OriginAutoPaste Origin = "auto-pre-paste"
)

// BackupName is the decoded form of a backup file name.
type BackupName struct {
	Character string
	Timestamp time.Time
	ID        string
	Origin    Origin
	Pinned    bool
}

// FormatBackupName encodes a backup file name from its parts.
func FormatBackupName(n BackupName) string {
	var sb strings.Builder
	sb.WriteString(n.Character)
	sb.WriteByte('_')
	sb.WriteString(n.Timestamp.Format(BackupTimeFormat))
	sb.WriteByte('_')
	sb.WriteString(n.ID)
	if n.Origin == OriginAutoPaste {
		sb.WriteByte('_')
		sb.WriteString(pasteIdent)
	}
	if n.Pinned {
		sb.WriteByte('_')
		sb.WriteString(pinnedIdent)
	}
	sb.WriteString(BackupFileExt)
	return sb.String()
}

// ParseBackupName decodes a backup file name. It returns false for file
// names that do not follow the backup naming scheme; such files are ignored
// by the store rather than treated as errors.
func ParseBackupName(fileName string) (BackupName, bool) {
	stem, ok := strings.CutSuffix(fileName, BackupFileExt)
	if !ok {
		return BackupName{}, false
	}

	segments := strings.Split(stem, "_")
	if len(segments) < 3 {
		return BackupName{}, false
	}

	ts, err := time.ParseInLocation(BackupTimeFormat, segments[1], time.Local)
	if err != nil {
		return BackupName{}, false
	}

	n := BackupName{
		Character: segments[0],
		Timestamp: ts,
		ID:        segments[2],
		Origin:    OriginManual,
	}
	for _, seg := range segments[3:] {
		switch seg {
		case pasteIdent:
			n.Origin = OriginAutoPaste
		case pinnedIdent:
			n.Pinned = true
		}
	}
	return n, true
}
