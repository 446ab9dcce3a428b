package dicomscan

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// characterSets maps Specific Character Set defined terms (PS3.3 C.12.1.1.2) to encodings. The
// default repertoire and ISO 2022 IR 6 are ASCII and need no decoding.
var characterSets = map[string]encoding.Encoding{
	"ISO_IR 100": charmap.ISO8859_1,
	"ISO_IR 101": charmap.ISO8859_2,
	"ISO_IR 109": charmap.ISO8859_3,
	"ISO_IR 110": charmap.ISO8859_4,
	"ISO_IR 144": charmap.ISO8859_5,
	"ISO_IR 127": charmap.ISO8859_6,
	"ISO_IR 126": charmap.ISO8859_7,
	"ISO_IR 138": charmap.ISO8859_8,
	"ISO_IR 148": charmap.ISO8859_9,
	"ISO_IR 203": charmap.ISO8859_15,
	"ISO_IR 166": charmap.Windows874,
	"ISO_IR 13":  japanese.ShiftJIS,
	"ISO_IR 192": unicode.UTF8,
	"GB18030":    simplifiedchinese.GB18030,
	"GBK":        simplifiedchinese.GBK,

	// code extensions are decoded with the single byte set they announce
	"ISO 2022 IR 100": charmap.ISO8859_1,
	"ISO 2022 IR 101": charmap.ISO8859_2,
	"ISO 2022 IR 109": charmap.ISO8859_3,
	"ISO 2022 IR 110": charmap.ISO8859_4,
	"ISO 2022 IR 144": charmap.ISO8859_5,
	"ISO 2022 IR 127": charmap.ISO8859_6,
	"ISO 2022 IR 126": charmap.ISO8859_7,
	"ISO 2022 IR 138": charmap.ISO8859_8,
	"ISO 2022 IR 148": charmap.ISO8859_9,
	"ISO 2022 IR 203": charmap.ISO8859_15,
	"ISO 2022 IR 166": charmap.Windows874,
	"ISO 2022 IR 13":  japanese.ShiftJIS,
	"ISO 2022 IR 87":  japanese.ISO2022JP,
	"ISO 2022 IR 159": japanese.ISO2022JP,
	"ISO 2022 IR 149": korean.EUCKR,
}

// decoderFor returns a decoder for the value of Specific Character Set, or nil when text is plain
// ASCII or the term is unknown.
func decoderFor(specificCharacterSet string) *encoding.Decoder {
	for _, term := range strings.Split(specificCharacterSet, `\`) {
		if enc, ok := characterSets[strings.TrimSpace(term)]; ok {
			return enc.NewDecoder()
		}
	}
	return nil
}
