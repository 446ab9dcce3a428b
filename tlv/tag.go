package tlv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gradienthealth/dicom/dicomtag"
)

// Tag identifies a data element by its group and element numbers.
type Tag struct {
	Group   uint16
	Element uint16
}

// Delimiters and item markers of the nested encoding. They are never preceded by a VR.
var (
	ItemTag                 = Tag{0xfffe, 0xe000}
	ItemDelimitationTag     = Tag{0xfffe, 0xe00d}
	SequenceDelimitationTag = Tag{0xfffe, 0xe0dd}

	PixelDataTag = Tag{0x7fe0, 0x0010}
)

// String renders the tag as "(gggg,eeee)", the same form dicomtag uses.
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// IsDelimiter is true for item and delimitation markers (group FFFE).
func (t Tag) IsDelimiter() bool {
	return t.Group == 0xfffe
}

// IsMeta is true for file meta information elements, which are always explicit VR.
func (t Tag) IsMeta() bool {
	return t.Group == 0x0002
}

// Dictionary converts the tag for lookups in the standard data dictionary.
func (t Tag) Dictionary() dicomtag.Tag {
	return dicomtag.Tag{Group: t.Group, Element: t.Element}
}

// FromDictionary converts a dictionary tag.
func FromDictionary(t dicomtag.Tag) Tag {
	return Tag{Group: t.Group, Element: t.Element}
}

// DictionaryVR returns the VR the data dictionary declares for the tag. Tags missing from the
// dictionary, including private tags, are reported as UN so that they are sized by their declared
// length alone. Ambiguous entries such as "US or SS" resolve to their first alternative.
func (t Tag) DictionaryVR() VR {
	info, err := dicomtag.Find(t.Dictionary())
	if err != nil || len(info.VR) < 2 {
		return UN
	}
	return VR(strings.ToUpper(info.VR[:2]))
}

// Name returns the dictionary keyword of the tag, or "" when unknown.
func (t Tag) Name() string {
	info, err := dicomtag.Find(t.Dictionary())
	if err != nil {
		return ""
	}
	return info.Name
}

// ParseTag parses a tag written as "(gggg,eeee)" or "gggg,eeee".
func ParseTag(s string) (Tag, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "()"), ",")
	if len(parts) != 2 {
		return Tag{}, fmt.Errorf("bad tag %q", s)
	}
	group, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("bad tag group %q: %w", s, err)
	}
	element, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
	if err != nil {
		return Tag{}, fmt.Errorf("bad tag element %q: %w", s, err)
	}
	return Tag{Group: uint16(group), Element: uint16(element)}, nil
}
