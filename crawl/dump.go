package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/macadamian/dicomscan"
	"github.com/macadamian/dicomscan/tlv"
)

const maxPreview = 64

func (a *app) newDumpCommand() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the element tree of a DICOM file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDump(cmd.OutOrStdout(), args[0], depth)
		},
	}
	cmd.Flags().IntVar(&depth, "max-depth", -1, "do not print elements nested deeper than this (-1 = no limit)")
	return cmd
}

func (a *app) runDump(out io.Writer, path string, maxDepth int) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", dicomscan.ErrIO, err)
	}

	faint := color.New(color.Faint)
	cyan := color.New(color.FgCyan)

	if ts := dicomscan.TransferSyntax(buf); ts != "" {
		faint.Fprintf(out, "# transfer syntax %s\n", ts)
	}

	count := 0
	err = dicomscan.Walk(buf, func(depth int, h tlv.ElementHeader) error {
		count++
		if maxDepth >= 0 && depth > maxDepth {
			return nil
		}
		indent := strings.Repeat("  ", depth)
		vr := h.EffectiveVR()
		length := fmt.Sprint(h.Length)
		if h.Undefined() {
			length = "undefined"
		}
		fmt.Fprintf(out, "%s%s %-2s %9s ", indent, h.Tag, vr, length)
		cyan.Fprint(out, h.Tag.Name())
		if v := preview(buf, h, vr); v != "" {
			fmt.Fprintf(out, " %s", v)
		}
		fmt.Fprintln(out)
		return nil
	})
	if err != nil {
		return fmt.Errorf("after %d elements: %w", count, err)
	}
	return nil
}

// preview renders a short form of the value of h.
func preview(buf []byte, h tlv.ElementHeader, vr tlv.VR) string {
	if h.Undefined() || h.IsSequence() || h.Tag.IsDelimiter() {
		return ""
	}
	end := h.ValueOffset + int(h.Length)
	if end > len(buf) {
		return "<truncated>"
	}
	v := buf[h.ValueOffset:end]

	switch vr {
	case tlv.US:
		return numbers(v, 2, func(b []byte) any { return binary.LittleEndian.Uint16(b) })
	case tlv.UL:
		return numbers(v, 4, func(b []byte) any { return binary.LittleEndian.Uint32(b) })
	case tlv.SS:
		return numbers(v, 2, func(b []byte) any { return int16(binary.LittleEndian.Uint16(b)) })
	case tlv.SL:
		return numbers(v, 4, func(b []byte) any { return int32(binary.LittleEndian.Uint32(b)) })
	}

	s := strings.TrimRight(string(v), " \x00")
	if len(s) == 0 || !printable(s) {
		return fmt.Sprintf("<%d bytes>", len(v))
	}
	return fmt.Sprintf("[%s]", shorten(s, maxPreview))
}

// shorten cuts s to at most n bytes without splitting a rune.
func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func numbers(v []byte, size int, read func([]byte) any) string {
	var parts []string
	for i := 0; i+size <= len(v) && len(parts) < 8; i += size {
		parts = append(parts, fmt.Sprint(read(v[i:i+size])))
	}
	if len(v)/size > len(parts) {
		parts = append(parts, "...")
	}
	return strings.Join(parts, `\`)
}

func printable(s string) bool {
	for _, r := range s {
		if r != '\t' && !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
