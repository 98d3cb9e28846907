package domain

// Attachment is a tagged variant: a ticket carries either a LegacyPath written
// by the old file-on-disk uploader or a StoredAttachment held in the store.
// The repository decides which one a row is; nothing downstream inspects shape.
type Attachment interface {
	attachmentKind() string
	// DisplayName is the file name shown to clients.
	DisplayName() string
}

// LegacyPath points at a file relative to the legacy upload directory.
type LegacyPath struct {
	Path string
}

func (LegacyPath) attachmentKind() string { return "legacy" }

func (l LegacyPath) DisplayName() string { return l.Path }

// StoredAttachment holds the attachment bytes in the ticket store. Data is only
// populated when the attachment itself is requested; listings carry Size.
type StoredAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

func (StoredAttachment) attachmentKind() string { return "stored" }

func (s StoredAttachment) DisplayName() string { return s.Filename }

// AttachmentKind returns "legacy", "stored" or "" for no attachment.
func AttachmentKind(a Attachment) string {
	if a == nil {
		return ""
	}
	return a.attachmentKind()
}
