package tlv

// VR is a two letter value representation code.
type VR string

// Implicit is the VR of headers decoded in implicit VR mode, where the stream carries no code.
const Implicit VR = ""

// UndefinedLength marks a value terminated by a delimitation item instead of a byte count.
const UndefinedLength uint32 = 0xffffffff

// VR codes from PS3.5 section 6.2.
const (
	AE VR = "AE"
	AS VR = "AS"
	AT VR = "AT"
	CS VR = "CS"
	DA VR = "DA"
	DS VR = "DS"
	DT VR = "DT"
	FD VR = "FD"
	FL VR = "FL"
	IS VR = "IS"
	LO VR = "LO"
	LT VR = "LT"
	OB VR = "OB"
	OD VR = "OD"
	OF VR = "OF"
	OL VR = "OL"
	OV VR = "OV"
	OW VR = "OW"
	PN VR = "PN"
	SH VR = "SH"
	SL VR = "SL"
	SQ VR = "SQ"
	SS VR = "SS"
	ST VR = "ST"
	SV VR = "SV"
	TM VR = "TM"
	UC VR = "UC"
	UI VR = "UI"
	UL VR = "UL"
	UN VR = "UN"
	UR VR = "UR"
	US VR = "US"
	UT VR = "UT"
	UV VR = "UV"
)

var knownVRs = map[VR]bool{
	AE: true, AS: true, AT: true, CS: true, DA: true, DS: true, DT: true, FD: true, FL: true,
	IS: true, LO: true, LT: true, OB: true, OD: true, OF: true, OL: true, OV: true, OW: true,
	PN: true, SH: true, SL: true, SQ: true, SS: true, ST: true, SV: true, TM: true, UC: true,
	UI: true, UL: true, UN: true, UR: true, US: true, UT: true, UV: true,
}

// Known reports whether vr is a recognized VR code.
func (vr VR) Known() bool {
	return knownVRs[vr]
}

// LongForm reports whether an explicit VR header with this code has two reserved bytes followed by
// a 32 bit length (PS3.5 section 7.1.2) rather than a 16 bit length.
func (vr VR) LongForm() bool {
	switch vr {
	case OB, OD, OF, OL, OV, OW, SQ, SV, UC, UN, UR, UT, UV:
		return true
	default:
		return false
	}
}

// IsText reports whether values of this VR are text subject to the Specific Character Set.
func (vr VR) IsText() bool {
	switch vr {
	case LO, LT, PN, SH, ST, UC, UT:
		return true
	default:
		return false
	}
}

// MultiValued reports whether a text value of this VR may hold several values separated by a
// backslash.
func (vr VR) MultiValued() bool {
	switch vr {
	case AE, AS, CS, DA, DS, DT, IS, LO, PN, SH, TM, UC, UI:
		return true
	default:
		return false
	}
}

// Mode selects how element headers are laid out in the stream.
type Mode int

const (
	// ExplicitVR headers carry a two letter VR code after the tag.
	ExplicitVR Mode = iota
	// ImplicitVR headers carry only the tag and a 32 bit length.
	ImplicitVR
)

func (m Mode) String() string {
	if m == ImplicitVR {
		return "implicit"
	}
	return "explicit"
}

// DetectMode guesses the VR mode of the element starting at pos by checking whether the two bytes
// after its tag are uppercase letters naming a known VR.
func DetectMode(buf []byte, pos int) Mode {
	if pos < 0 || pos+6 > len(buf) {
		return ImplicitVR
	}
	a, b := buf[pos+4], buf[pos+5]
	if a < 'A' || a > 'Z' || b < 'A' || b > 'Z' {
		return ImplicitVR
	}
	if !VR([]byte{a, b}).Known() {
		return ImplicitVR
	}
	return ExplicitVR
}
