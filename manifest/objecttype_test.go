package manifest

import (
	"testing"

	"github.com/rrauch/ark"
)

func TestObjectTypeConstructorsValid(t *testing.T) {
	for _, o := range []ObjectType{
		FilesystemPosix(),
		FilesystemWindows(),
		EmailImap(),
		EmailGmail(),
		ObjectStorageS3(),
	} {
		if err := o.Validate(); err != nil {
			t.Fatalf("Validate(%s): %v", o.Kind(), err)
		}
		if o.Kind() == TypeInvalid {
			t.Fatalf("constructor produced invalid kind")
		}
	}
}

func TestObjectTypeZeroVariants(t *testing.T) {
	var empty ObjectType
	if err := empty.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType, got %v", err)
	}
	if empty.Kind() != TypeInvalid {
		t.Fatalf("expected TypeInvalid")
	}
}

func TestObjectTypeMultipleVariants(t *testing.T) {
	two := ObjectType{
		Filesystem: &Filesystem{Posix: &Posix{}},
		Email:      &Email{Imap: &Imap{}},
	}
	if err := two.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType, got %v", err)
	}
}

func TestObjectTypeNestedSelection(t *testing.T) {
	none := ObjectType{Filesystem: &Filesystem{}}
	if err := none.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType for empty filesystem, got %v", err)
	}

	both := ObjectType{Filesystem: &Filesystem{Posix: &Posix{}, Windows: &Windows{}}}
	if err := both.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType for double filesystem, got %v", err)
	}

	emptyEmail := ObjectType{Email: &Email{}}
	if err := emptyEmail.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType for empty email, got %v", err)
	}

	emptyStorage := ObjectType{ObjectStorage: &ObjectStorage{}}
	if err := emptyStorage.Validate(); !ark.IsKind(err, ark.KindMalformedObjectType) {
		t.Fatalf("expected MalformedObjectType for empty object_storage, got %v", err)
	}
}
