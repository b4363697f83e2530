package manifest

import "github.com/rrauch/ark"

// ObjectType is the closed taxonomy of archive-source variants a vault can
// bind to. Exactly one top-level variant must be set and, where that variant
// branches, exactly one nested variant.
//
// Adding a variant is a breaking schema change: older consumers must reject
// manifests carrying selections they do not know, never skip them.
type ObjectType struct {
	Filesystem    *Filesystem    `cbor:"filesystem,omitempty"`
	Email         *Email         `cbor:"email,omitempty"`
	ObjectStorage *ObjectStorage `cbor:"object_storage,omitempty"`
}

type Filesystem struct {
	Posix   *Posix   `cbor:"posix,omitempty"`
	Windows *Windows `cbor:"windows,omitempty"`
}

type Email struct {
	Imap  *Imap  `cbor:"imap,omitempty"`
	Gmail *Gmail `cbor:"gmail,omitempty"`
}

type ObjectStorage struct {
	S3 *S3 `cbor:"s3,omitempty"`
}

type (
	Posix   struct{}
	Windows struct{}
	Imap    struct{}
	Gmail   struct{}
	S3      struct{}
)

// FilesystemPosix returns the filesystem/posix object type.
func FilesystemPosix() ObjectType {
	return ObjectType{Filesystem: &Filesystem{Posix: &Posix{}}}
}

// FilesystemWindows returns the filesystem/windows object type.
func FilesystemWindows() ObjectType {
	return ObjectType{Filesystem: &Filesystem{Windows: &Windows{}}}
}

// EmailImap returns the email/imap object type.
func EmailImap() ObjectType {
	return ObjectType{Email: &Email{Imap: &Imap{}}}
}

// EmailGmail returns the email/gmail object type.
func EmailGmail() ObjectType {
	return ObjectType{Email: &Email{Gmail: &Gmail{}}}
}

// ObjectStorageS3 returns the object_storage/s3 object type.
func ObjectStorageS3() ObjectType {
	return ObjectType{ObjectStorage: &ObjectStorage{S3: &S3{}}}
}

// clone deep-copies the variant tree so snapshot copies never alias it.
func (o ObjectType) clone() ObjectType {
	if o.Filesystem != nil {
		fs := *o.Filesystem
		if fs.Posix != nil {
			p := *fs.Posix
			fs.Posix = &p
		}
		if fs.Windows != nil {
			w := *fs.Windows
			fs.Windows = &w
		}
		o.Filesystem = &fs
	}
	if o.Email != nil {
		e := *o.Email
		if e.Imap != nil {
			i := *e.Imap
			e.Imap = &i
		}
		if e.Gmail != nil {
			g := *e.Gmail
			e.Gmail = &g
		}
		o.Email = &e
	}
	if o.ObjectStorage != nil {
		os := *o.ObjectStorage
		if os.S3 != nil {
			s := *os.S3
			os.S3 = &s
		}
		o.ObjectStorage = &os
	}
	return o
}

// TypeKind enumerates the valid fully-selected variants so callers can
// branch exhaustively.
type TypeKind uint8

const (
	TypeInvalid TypeKind = iota
	TypeFilesystemPosix
	TypeFilesystemWindows
	TypeEmailImap
	TypeEmailGmail
	TypeObjectStorageS3
)

// Validate fails with kind MalformedObjectType unless exactly one variant is
// selected at every level.
func (o ObjectType) Validate() error {
	const op = "manifest.ObjectType"

	top := 0
	if o.Filesystem != nil {
		top++
	}
	if o.Email != nil {
		top++
	}
	if o.ObjectStorage != nil {
		top++
	}
	if top != 1 {
		return ark.NewError(ark.KindMalformedObjectType, op, "exactly one top-level variant must be set")
	}

	switch {
	case o.Filesystem != nil:
		nested := 0
		if o.Filesystem.Posix != nil {
			nested++
		}
		if o.Filesystem.Windows != nil {
			nested++
		}
		if nested != 1 {
			return ark.NewError(ark.KindMalformedObjectType, op, "filesystem requires exactly one of posix, windows")
		}
	case o.Email != nil:
		nested := 0
		if o.Email.Imap != nil {
			nested++
		}
		if o.Email.Gmail != nil {
			nested++
		}
		if nested != 1 {
			return ark.NewError(ark.KindMalformedObjectType, op, "email requires exactly one of imap, gmail")
		}
	case o.ObjectStorage != nil:
		if o.ObjectStorage.S3 == nil {
			return ark.NewError(ark.KindMalformedObjectType, op, "object_storage requires s3")
		}
	}
	return nil
}

// Kind returns the selected variant, or TypeInvalid if Validate would fail.
func (o ObjectType) Kind() TypeKind {
	if o.Validate() != nil {
		return TypeInvalid
	}
	switch {
	case o.Filesystem != nil && o.Filesystem.Posix != nil:
		return TypeFilesystemPosix
	case o.Filesystem != nil && o.Filesystem.Windows != nil:
		return TypeFilesystemWindows
	case o.Email != nil && o.Email.Imap != nil:
		return TypeEmailImap
	case o.Email != nil && o.Email.Gmail != nil:
		return TypeEmailGmail
	default:
		return TypeObjectStorageS3
	}
}

func (k TypeKind) String() string {
	switch k {
	case TypeFilesystemPosix:
		return "filesystem/posix"
	case TypeFilesystemWindows:
		return "filesystem/windows"
	case TypeEmailImap:
		return "email/imap"
	case TypeEmailGmail:
		return "email/gmail"
	case TypeObjectStorageS3:
		return "object_storage/s3"
	default:
		return "invalid"
	}
}
