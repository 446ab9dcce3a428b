// Package dicomscan extracts a small set of header fields from DICOM files and resolves DICOMDIR
// indexes to the folders they reference, without decoding whole datasets.
package dicomscan

import "strings"

// HeaderFields holds the attributes extracted from the start of a file. Every field is optional:
// strings are empty and pointers nil when the attribute was not found within the scanned prefix.
//
// The struct tags form the watchlist of the extractor:
//
//	tag    the element to match, as "(gggg,eeee)"
//	vr     how the value bytes are interpreted; text VRs are decoded through the character set
//	index  for multi-valued text, the backslash separated component to keep (default 0)
//
// A bool field with no vr records the presence of the element.
type HeaderFields struct {
	// Meta information.
	TransferSyntaxUID string `tag:"(0002,0010)" vr:"UI" json:",omitempty"`

	SpecificCharacterSet string `tag:"(0008,0005)" vr:"CS" json:",omitempty"`
	Modality             string `tag:"(0008,0060)" vr:"CS" json:",omitempty"`
	SeriesDescription    string `tag:"(0008,103e)" vr:"LO" json:",omitempty"`

	// Patient.
	PatientName      string `tag:"(0010,0010)" vr:"PN" json:",omitempty"`
	PatientID        string `tag:"(0010,0020)" vr:"LO" json:",omitempty"`
	PatientBirthDate string `tag:"(0010,0030)" vr:"DA" json:",omitempty"`
	PatientSex       string `tag:"(0010,0040)" vr:"CS" json:",omitempty"`

	// Study and series identification. SeriesNumber is kept as text since it only serves as a
	// grouping key.
	StudyInstanceUID  string `tag:"(0020,000d)" vr:"UI" json:",omitempty"`
	SeriesInstanceUID string `tag:"(0020,000e)" vr:"UI" json:",omitempty"`
	StudyID           string `tag:"(0020,0010)" vr:"SH" json:",omitempty"`
	SeriesNumber      string `tag:"(0020,0011)" vr:"IS" json:",omitempty"`
	InstanceNumber    *int   `tag:"(0020,0013)" vr:"IS" json:",omitempty"`

	// SlicePosition is the z component of Image Position (Patient).
	SlicePosition *float64 `tag:"(0020,0032)" vr:"DS" index:"2" json:",omitempty"`

	// Image pixel description.
	SamplesPerPixel           *int   `tag:"(0028,0002)" vr:"US" json:",omitempty"`
	PhotometricInterpretation string `tag:"(0028,0004)" vr:"CS" json:",omitempty"`
	Rows                      *int   `tag:"(0028,0010)" vr:"US" json:",omitempty"`
	Columns                   *int   `tag:"(0028,0011)" vr:"US" json:",omitempty"`
	BitsAllocated             *int   `tag:"(0028,0100)" vr:"US" json:",omitempty"`
	PixelRepresentation       *int   `tag:"(0028,0103)" vr:"US" json:",omitempty"`

	HasPixelData bool `tag:"(7fe0,0010)"`

	// Preamble is set when the file starts with the 128 byte preamble and DICM signature.
	Preamble bool
	// Truncated is set when the scan ended on a decode failure rather than a stop condition.
	Truncated bool
}

// IsMonochrome reports whether the file holds single sample grayscale pixel data.
func (h *HeaderFields) IsMonochrome() bool {
	if h.Rows == nil || h.Columns == nil || !h.HasPixelData {
		return false
	}
	if h.SamplesPerPixel != nil && *h.SamplesPerPixel != 1 {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(h.PhotometricInterpretation), "MONOCHROME")
}

// HasGeometry reports whether both image dimensions are known.
func (h *HeaderFields) HasGeometry() bool {
	return h.Rows != nil && h.Columns != nil && *h.Rows > 0 && *h.Columns > 0
}
