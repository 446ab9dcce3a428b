package dicomscan

import (
	"errors"

	"github.com/macadamian/dicomscan/tlv"
)

// Walk visits every element of the file held in buf, the meta group included, descending into
// sequences. The dataset VR mode is detected after the meta group. Returning tlv.Stop from fn ends
// the walk without error.
func Walk(buf []byte, fn tlv.WalkFunc) error {
	r, err := newDatasetReader(buf)
	if err != nil {
		return err
	}

	for !r.done() {
		if t, ok := r.s.Peek(); ok && !t.IsMeta() {
			break
		}
		h, err := r.next()
		if err != nil {
			return err
		}
		if err := fn(0, h); err != nil {
			if errors.Is(err, tlv.Stop) {
				return nil
			}
			return err
		}
		if err := r.s.Skip(h); err != nil {
			return err
		}
	}
	if r.done() {
		return nil
	}

	if err := r.enterDataset(); err != nil {
		return err
	}
	return r.s.Walk(fn)
}

// TransferSyntax returns the Transfer Syntax UID declared in the meta group of buf, or "" when
// the file has none.
func TransferSyntax(buf []byte) string {
	var uid string
	_ = Walk(buf, func(_ int, h tlv.ElementHeader) error {
		if !h.Tag.IsMeta() {
			return tlv.Stop
		}
		if h.Tag == transferSyntaxTag && !h.Undefined() && h.ValueOffset+int(h.Length) <= len(buf) {
			uid = trimValue(string(buf[h.ValueOffset : h.ValueOffset+int(h.Length)]))
			return tlv.Stop
		}
		return nil
	})
	return uid
}
