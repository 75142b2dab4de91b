package registry

import (
	"cmp"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/tonimelisma/clouddrive-go/internal/api"
)

// Tag selects a subset of entries.
type Tag string

const (
	TagAll         Tag = "all"
	TagImage       Tag = "image"
	TagText        Tag = "text"
	TagPreviewable Tag = "previewable"
	TagOther       Tag = "other"
)

// Key is a sortable column.
type Key string

const (
	KeyName           Key = "name"
	KeySize           Key = "size"
	KeyUploadedBy     Key = "uploaded_by"
	KeyLastModifiedBy Key = "last_modified_by"
	KeyCreatedAt      Key = "created_at"
	KeyModifiedAt     Key = "modified_at"
)

// Direction is the sort order.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

var (
	imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".svg"}
	textExts  = []string{".txt", ".md", ".c", ".h", ".go", ".py", ".js", ".json", ".csv", ".log", ".xml", ".html", ".css", ".yaml", ".yml", ".toml"}
)

// ParseTag validates a filter tag name.
func ParseTag(s string) (Tag, error) {
	switch t := Tag(strings.ToLower(s)); t {
	case TagAll, TagImage, TagText, TagPreviewable, TagOther:
		return t, nil
	case "":
		return TagAll, nil
	default:
		return "", fmt.Errorf("registry: unknown filter %q (want all, image, text, previewable or other)", s)
	}
}

// ParseKey validates a sort key name.
func ParseKey(s string) (Key, error) {
	switch k := Key(strings.ToLower(s)); k {
	case KeyName, KeySize, KeyUploadedBy, KeyLastModifiedBy, KeyCreatedAt, KeyModifiedAt:
		return k, nil
	case "":
		return KeyName, nil
	default:
		return "", fmt.Errorf("registry: unknown sort key %q", s)
	}
}

// IsImage reports whether an entry is an image, by MIME type or extension.
func IsImage(e api.FileEntry) bool {
	return strings.HasPrefix(e.FileType, "image/") || hasExt(e.Name, imageExts)
}

// IsText reports whether an entry is text, by MIME type or extension.
func IsText(e api.FileEntry) bool {
	return strings.HasPrefix(e.FileType, "text/") || hasExt(e.Name, textExts)
}

// Filter returns the entries matching tag. The input is not modified.
func Filter(entries []api.FileEntry, tag Tag) []api.FileEntry {
	out := make([]api.FileEntry, 0, len(entries))

	for _, e := range entries {
		if matches(e, tag) {
			out = append(out, e)
		}
	}

	return out
}

func matches(e api.FileEntry, tag Tag) bool {
	switch tag {
	case TagImage:
		return IsImage(e)
	case TagText:
		return IsText(e) && !IsImage(e)
	case TagPreviewable:
		return e.Previewable
	case TagOther:
		return !IsImage(e) && !IsText(e)
	default:
		return true
	}
}

// Sort returns a sorted copy of entries. Ties break by name ascending so
// the order is deterministic. The input is not modified.
func Sort(entries []api.FileEntry, key Key, dir Direction) []api.FileEntry {
	out := cloneEntries(entries)

	slices.SortStableFunc(out, func(a, b api.FileEntry) int {
		c := compareBy(a, b, key)
		if dir == Descending {
			c = -c
		}

		if c == 0 && key != KeyName {
			c = cmp.Compare(a.Name, b.Name)
		}

		return c
	})

	return out
}

func compareBy(a, b api.FileEntry, key Key) int {
	switch key {
	case KeySize:
		return cmp.Compare(a.Size, b.Size)
	case KeyUploadedBy:
		return strings.Compare(a.UploadedBy, b.UploadedBy)
	case KeyLastModifiedBy:
		return strings.Compare(a.LastModifiedBy, b.LastModifiedBy)
	case KeyCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case KeyModifiedAt:
		return a.ModifiedAt.Compare(b.ModifiedAt)
	default:
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
}

func hasExt(name string, exts []string) bool {
	return slices.Contains(exts, strings.ToLower(path.Ext(name)))
}
