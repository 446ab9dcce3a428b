package dicomscan_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadamian/dicomscan"
	"github.com/macadamian/dicomscan/tlv"
	"github.com/macadamian/dicomscan/tlv/tlvtest"
)

const explicitLittleEndian = "1.2.840.10008.1.2.1"

var (
	tagCharset        = tlv.Tag{Group: 0x0008, Element: 0x0005}
	tagModality       = tlv.Tag{Group: 0x0008, Element: 0x0060}
	tagSeriesDesc     = tlv.Tag{Group: 0x0008, Element: 0x103e}
	tagRefSeries      = tlv.Tag{Group: 0x0008, Element: 0x1115}
	tagRefInstance    = tlv.Tag{Group: 0x0008, Element: 0x1155}
	tagPrivate        = tlv.Tag{Group: 0x0009, Element: 0x1001}
	tagPatientName    = tlv.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientID      = tlv.Tag{Group: 0x0010, Element: 0x0020}
	tagBirthDate      = tlv.Tag{Group: 0x0010, Element: 0x0030}
	tagSex            = tlv.Tag{Group: 0x0010, Element: 0x0040}
	tagStudyUID       = tlv.Tag{Group: 0x0020, Element: 0x000d}
	tagSeriesUID      = tlv.Tag{Group: 0x0020, Element: 0x000e}
	tagStudyID        = tlv.Tag{Group: 0x0020, Element: 0x0010}
	tagSeriesNumber   = tlv.Tag{Group: 0x0020, Element: 0x0011}
	tagInstanceNumber = tlv.Tag{Group: 0x0020, Element: 0x0013}
	tagPosition       = tlv.Tag{Group: 0x0020, Element: 0x0032}
	tagSamples        = tlv.Tag{Group: 0x0028, Element: 0x0002}
	tagPhotometric    = tlv.Tag{Group: 0x0028, Element: 0x0004}
	tagRows           = tlv.Tag{Group: 0x0028, Element: 0x0010}
	tagColumns        = tlv.Tag{Group: 0x0028, Element: 0x0011}
	tagBitsAllocated  = tlv.Tag{Group: 0x0028, Element: 0x0100}
	tagPixelRep       = tlv.Tag{Group: 0x0028, Element: 0x0103}
)

func ctImage() *tlvtest.Builder {
	ref := tlvtest.New(tlv.ExplicitVR).String(tagRefInstance, tlv.UI, "1.2.3.99")
	return tlvtest.New(tlv.ExplicitVR).
		Preamble().
		Meta(explicitLittleEndian).
		String(tagCharset, tlv.CS, "ISO_IR 100").
		String(tagModality, tlv.CS, "CT").
		String(tagSeriesDesc, tlv.LO, "HEAD 5mm").
		Sequence(tagRefSeries, true, ref).
		Element(tagPrivate, tlv.UN, []byte{1, 2, 3, 4}).
		String(tagPatientName, tlv.PN, "M\xfcller^Hans").
		String(tagPatientID, tlv.LO, "P-0042").
		String(tagStudyUID, tlv.UI, "1.2.3").
		String(tagSeriesUID, tlv.UI, "1.2.3.4").
		String(tagSeriesNumber, tlv.IS, "3").
		String(tagInstanceNumber, tlv.IS, "12").
		String(tagPosition, tlv.DS, `-100\-120.5\42.25`).
		Uint16(tagSamples, 1).
		String(tagPhotometric, tlv.CS, "MONOCHROME2").
		Uint16(tagRows, 512).
		Uint16(tagColumns, 480).
		Uint16(tagBitsAllocated, 16).
		Uint16(tagPixelRep, 1).
		Element(tlv.PixelDataTag, tlv.OW, make([]byte, 16))
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReadHeader(t *testing.T) {
	// bytes after Pixel Data are never looked at
	path := writeFile(t, "ct.dcm", ctImage().Raw([]byte{0xff, 0xff, 0xff}).Bytes())

	h, err := dicomscan.ReadHeader(path)
	require.NoError(t, err)

	assert.True(t, h.Preamble)
	assert.False(t, h.Truncated)
	assert.True(t, h.HasPixelData)
	assert.Equal(t, explicitLittleEndian, h.TransferSyntaxUID)
	assert.Equal(t, "CT", h.Modality)
	assert.Equal(t, "HEAD 5mm", h.SeriesDescription)
	assert.Equal(t, "Müller^Hans", h.PatientName)
	assert.Equal(t, "P-0042", h.PatientID)
	assert.Equal(t, "1.2.3", h.StudyInstanceUID)
	assert.Equal(t, "1.2.3.4", h.SeriesInstanceUID)
	assert.Equal(t, "3", h.SeriesNumber)
	assert.Equal(t, "MONOCHROME2", h.PhotometricInterpretation)

	require.NotNil(t, h.InstanceNumber)
	assert.Equal(t, 12, *h.InstanceNumber)
	require.NotNil(t, h.SlicePosition)
	assert.InDelta(t, 42.25, *h.SlicePosition, 1e-9)
	require.NotNil(t, h.Rows)
	require.NotNil(t, h.Columns)
	assert.Equal(t, 512, *h.Rows)
	assert.Equal(t, 480, *h.Columns)
	require.NotNil(t, h.BitsAllocated)
	assert.Equal(t, 16, *h.BitsAllocated)
	require.NotNil(t, h.PixelRepresentation)
	assert.Equal(t, 1, *h.PixelRepresentation)

	assert.True(t, h.HasGeometry())
	assert.True(t, h.IsMonochrome())
}

func TestReadHeaderIsIdempotent(t *testing.T) {
	path := writeFile(t, "ct.dcm", ctImage().Bytes())

	first, err := dicomscan.ReadHeader(path)
	require.NoError(t, err)
	second, err := dicomscan.ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseHeaderImplicitLegacy(t *testing.T) {
	buf := tlvtest.New(tlv.ImplicitVR).
		String(tagModality, tlv.CS, "MR").
		Element(tagPrivate, tlv.UN, []byte("opaque")).
		String(tagSeriesNumber, tlv.IS, "7").
		String(tagPosition, tlv.DS, `0\0\-12.5`).
		Uint16(tagRows, 256).
		Bytes()

	h, err := dicomscan.ParseHeader(buf)
	require.NoError(t, err)
	assert.False(t, h.Preamble)
	assert.False(t, h.Truncated)
	assert.False(t, h.HasPixelData)
	assert.Equal(t, "MR", h.Modality)
	assert.Equal(t, "7", h.SeriesNumber)
	require.NotNil(t, h.SlicePosition)
	assert.InDelta(t, -12.5, *h.SlicePosition, 1e-9)
	require.NotNil(t, h.Rows)
	assert.Equal(t, 256, *h.Rows)
	assert.Nil(t, h.Columns)
	assert.Nil(t, h.InstanceNumber)
}

func TestParseHeaderTruncatedMidHeader(t *testing.T) {
	full := tlvtest.New(tlv.ImplicitVR).String(tagModality, tlv.CS, "MR").Bytes()
	for cut := 0; cut < len(full); cut++ {
		h, err := dicomscan.ParseHeader(full[:cut])
		assert.ErrorIs(t, err, dicomscan.ErrNotRecognized, "cut at %d", cut)
		assert.Nil(t, h)
	}

	withPreamble := tlvtest.New(tlv.ExplicitVR).Preamble().String(tagModality, tlv.CS, "MR").Bytes()
	for cut := 132; cut < len(withPreamble); cut++ {
		h, err := dicomscan.ParseHeader(withPreamble[:cut])
		assert.ErrorIs(t, err, dicomscan.ErrNotRecognized, "preamble, cut at %d", cut)
		assert.Nil(t, h)
	}

	h, err := dicomscan.ParseHeader(withPreamble)
	require.NoError(t, err)
	assert.Equal(t, "MR", h.Modality)
	assert.True(t, h.Preamble)
}

func TestParseHeaderTruncatedAfterElements(t *testing.T) {
	full := ctImage().Bytes()
	// cut inside the Rows element
	cut := len(full) - 16 - 12 - 3*10 - 5
	h, err := dicomscan.ParseHeader(full[:cut])
	require.NoError(t, err)
	assert.True(t, h.Truncated)
	assert.Equal(t, "CT", h.Modality)
	assert.Equal(t, "MONOCHROME2", h.PhotometricInterpretation)
	assert.Nil(t, h.Rows)
	assert.False(t, h.HasPixelData)
}

func TestParseHeaderStopsOnceEveryValueIsRead(t *testing.T) {
	buf := tlvtest.New(tlv.ExplicitVR).
		Preamble().
		Meta(explicitLittleEndian).
		String(tagCharset, tlv.CS, "ISO_IR 100").
		String(tagModality, tlv.CS, "MR").
		String(tagSeriesDesc, tlv.LO, "T1 SAG").
		String(tagPatientName, tlv.PN, "Doe^Jane").
		String(tagPatientID, tlv.LO, "P-7").
		String(tagBirthDate, tlv.DA, "19800101").
		String(tagSex, tlv.CS, "F").
		String(tagStudyUID, tlv.UI, "1.2.3").
		String(tagSeriesUID, tlv.UI, "1.2.3.4").
		String(tagStudyID, tlv.SH, "S1").
		String(tagSeriesNumber, tlv.IS, "2").
		String(tagInstanceNumber, tlv.IS, "1").
		String(tagPosition, tlv.DS, `0\0\5`).
		Uint16(tagSamples, 1).
		String(tagPhotometric, tlv.CS, "MONOCHROME2").
		Uint16(tagRows, 256).
		Uint16(tagColumns, 256).
		Uint16(tagBitsAllocated, 16).
		Uint16(tagPixelRep, 0).
		// the start of an element header cut short
		Raw([]byte{0x09, 0x00, 0x01}).
		Bytes()

	h, err := dicomscan.ParseHeader(buf)
	require.NoError(t, err)
	assert.False(t, h.Truncated)
	assert.False(t, h.HasPixelData)
	assert.Equal(t, "S1", h.StudyID)
	require.NotNil(t, h.PixelRepresentation)
	assert.Equal(t, 0, *h.PixelRepresentation)
}

func TestParseHeaderNotDICOM(t *testing.T) {
	for _, buf := range [][]byte{
		nil,
		[]byte("just some text that is long enough to look at"),
		make([]byte, 200),
	} {
		_, err := dicomscan.ParseHeader(buf)
		assert.ErrorIs(t, err, dicomscan.ErrNotRecognized)
	}
}

func TestParseHeaderUnsupportedTransferSyntax(t *testing.T) {
	buf := tlvtest.New(tlv.ExplicitVR).
		Preamble().
		Meta("1.2.840.10008.1.2.2").
		String(tagModality, tlv.CS, "CT").
		Bytes()

	h, err := dicomscan.ParseHeader(buf)
	assert.ErrorIs(t, err, dicomscan.ErrUnsupportedEncoding)
	require.NotNil(t, h)
	assert.Equal(t, "1.2.840.10008.1.2.2", h.TransferSyntaxUID)
	assert.Empty(t, h.Modality)
}

func TestParseHeaderMaxBytes(t *testing.T) {
	buf := tlvtest.New(tlv.ExplicitVR).
		String(tagModality, tlv.CS, "US").
		Element(tagPrivate, tlv.OB, make([]byte, 4096)).
		Uint16(tagRows, 64).
		Bytes()

	h, err := dicomscan.ParseHeader(buf, dicomscan.WithMaxBytes(1024))
	require.NoError(t, err)
	assert.Equal(t, "US", h.Modality)
	assert.Nil(t, h.Rows)
	assert.False(t, h.Truncated)

	h, err = dicomscan.ParseHeader(buf)
	require.NoError(t, err)
	require.NotNil(t, h.Rows)
	assert.Equal(t, 64, *h.Rows)
}

func TestReadHeaderByteCapComparesFileSize(t *testing.T) {
	full := ctImage().Bytes()
	// cut inside the Rows element
	cut := len(full) - 16 - 12 - 3*10 - 5

	short := writeFile(t, "short.dcm", full[:cut])
	h, err := dicomscan.ReadHeader(short, dicomscan.WithMaxBytes(cut))
	require.NoError(t, err)
	assert.True(t, h.Truncated, "a file exactly at the cap that ends mid element is truncated")
	assert.Nil(t, h.Rows)

	long := writeFile(t, "long.dcm", full)
	h, err = dicomscan.ReadHeader(long, dicomscan.WithMaxBytes(cut))
	require.NoError(t, err)
	assert.False(t, h.Truncated, "stopping at the cap of a longer file is not truncation")
	assert.Nil(t, h.Rows)
	assert.Equal(t, "MONOCHROME2", h.PhotometricInterpretation)
}

func TestReadHeaderMissingFile(t *testing.T) {
	_, err := dicomscan.ReadHeader(filepath.Join(t.TempDir(), "absent.dcm"))
	assert.ErrorIs(t, err, dicomscan.ErrIO)
}
