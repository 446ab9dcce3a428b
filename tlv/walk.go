package tlv

import (
	"errors"
	"fmt"
)

// Stop can be returned by a WalkFunc to end a walk early without error.
var Stop = errors.New("stop walk")

// WalkFunc is called for every element header visited by Walk. depth is the number of sequences
// enclosing the element. The scanner is positioned at the value of h when the function runs; the
// function must not consume it.
type WalkFunc func(depth int, h ElementHeader) error

type frameKind int

const (
	sequenceFrame frameKind = iota
	itemFrame
	fragmentFrame
)

// frame is one level of nesting. end is the offset where a defined length frame closes, or -1 when
// the frame is closed by a delimitation item. mode is the VR mode of elements inside the frame.
type frame struct {
	kind frameKind
	end  int
	mode Mode
}

// Walk visits every remaining element header, descending into sequences and items. Nesting is
// tracked on an explicit stack so that deeply nested input cannot exhaust the call stack.
func (s *Scanner) Walk(fn WalkFunc) error {
	for !s.Done() {
		h, err := s.Next()
		if err != nil {
			return err
		}
		if err := fn(0, h); err != nil {
			if errors.Is(err, Stop) {
				return nil
			}
			return err
		}
		if f, ok := s.container(h); ok {
			if err := s.run([]frame{f}, fn); err != nil {
				if errors.Is(err, Stop) {
					return nil
				}
				return err
			}
			continue
		}
		if err := s.Skip(h); err != nil {
			return err
		}
	}
	return nil
}

// container returns the frame that the value of h opens, if its value is nested content.
func (s *Scanner) container(h ElementHeader) (frame, bool) {
	if h.Tag.IsDelimiter() {
		return frame{}, false
	}
	if !h.IsSequence() && !(h.Undefined() && h.isEncapsulated()) {
		return frame{}, false
	}

	f := frame{kind: sequenceFrame, end: -1, mode: s.mode}
	if h.isEncapsulated() && h.Undefined() {
		f.kind = fragmentFrame
	}
	if h.VR == UN && h.Undefined() {
		// UN with undefined length is a sequence encoded as implicit VR (PS3.5 6.2.2)
		f.mode = ImplicitVR
	}
	if !h.Undefined() {
		f.end = s.clampEnd(h.Length)
	}
	return f, true
}

func (s *Scanner) clampEnd(length uint32) int {
	if uint64(length) > uint64(s.c.Len()) {
		return len(s.c.buf)
	}
	return s.c.Pos() + int(length)
}

// run consumes nested content until every frame on the stack is closed. With a nil fn it only
// skips, and defined length values are jumped over without being descended into.
func (s *Scanner) run(stack []frame, fn WalkFunc) error {
	saved := s.mode
	defer func() { s.mode = saved }()

	// depth counts the non-item frames on the stack
	depth := 0
	for _, f := range stack {
		if f.kind != itemFrame {
			depth++
		}
	}
	push := func(f frame) {
		stack = append(stack, f)
		if f.kind != itemFrame {
			depth++
		}
	}
	pop := func() frameKind {
		kind := stack[len(stack)-1].kind
		stack = stack[:len(stack)-1]
		if kind != itemFrame {
			depth--
		}
		return kind
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.end >= 0 && s.c.Pos() >= top.end {
			pop()
			continue
		}

		s.mode = top.mode
		h, err := s.Next()
		if err != nil {
			return err
		}

		switch h.Tag {
		case SequenceDelimitationTag:
			// close any unterminated items along with the sequence
			for len(stack) > 0 && pop() == itemFrame {
			}

		case ItemDelimitationTag:
			if top.kind != itemFrame {
				return fmt.Errorf("%w: item delimiter outside item at offset %d", ErrUnsupportedEncoding, h.Offset)
			}
			pop()

		case ItemTag:
			switch {
			case top.kind == itemFrame:
				return fmt.Errorf("%w: item nested directly in item at offset %d", ErrUnsupportedEncoding, h.Offset)
			case top.kind == fragmentFrame:
				if h.Undefined() {
					return fmt.Errorf("%w: undefined length fragment at offset %d", ErrUnsupportedEncoding, h.Offset)
				}
				if err := s.c.Skip(h.Length); err != nil {
					return err
				}
			case h.Undefined():
				push(frame{kind: itemFrame, end: -1, mode: top.mode})
			case fn == nil:
				if err := s.c.Skip(h.Length); err != nil {
					return err
				}
			default:
				push(frame{kind: itemFrame, end: s.clampEnd(h.Length), mode: top.mode})
			}

		default:
			if top.kind != itemFrame {
				return fmt.Errorf("%w: element %v outside item at offset %d", ErrUnsupportedEncoding, h.Tag, h.Offset)
			}
			if fn != nil {
				if err := fn(depth, h); err != nil {
					return err
				}
			}
			if f, ok := s.container(h); ok && (fn != nil || h.Undefined()) {
				push(f)
				continue
			}
			if h.Undefined() {
				return fmt.Errorf("%w: undefined length on %v", ErrUnsupportedEncoding, h.Tag)
			}
			if err := s.c.Skip(h.Length); err != nil {
				return err
			}
		}
	}
	return nil
}
