package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/wippyai/wasm-bridge/structure"
	"github.com/wippyai/wasm-bridge/witmap"
)

var (
	nameColor  = color.New(color.FgGreen, color.Bold)
	kindColor  = color.New(color.FgCyan)
	typeColor  = color.New(color.FgBlue)
	dimColor   = color.New(color.Faint)
	errorColor = color.New(color.FgRed)
)

// describe prints a structure and its members.
func describe(w io.Writer, s *structure.Structure) {
	fmt.Fprintf(w, "%s %s %s", nameColor.Sprint(s.String()), kindColor.Sprint(s.Kind),
		dimColor.Sprintf("size=%d align=%d", s.ByteSize, s.Align))
	if s.Purpose != structure.PurposeNone {
		fmt.Fprintf(w, " %s", kindColor.Sprintf("purpose=%s", s.Purpose))
	}
	if s.Length > 0 {
		fmt.Fprintf(w, " %s", dimColor.Sprintf("length=%d", s.Length))
	}
	fmt.Fprintln(w)
	for _, m := range s.Members {
		name := m.Name
		if name == "" {
			name = "_"
		}
		// Foreign identifiers may be arbitrary UTF-8.
		fmt.Fprintf(w, "    %s %s %s\n", runewidth.FillRight(name, 16), typeColor.Sprint(memberType(m)),
			dimColor.Sprintf("@%d:%d", m.BitOffset, m.BitSize))
	}
	for _, name := range s.Items() {
		fmt.Fprintf(w, "    %s\n", kindColor.Sprint("."+name))
	}
	for _, e := range s.Errors() {
		fmt.Fprintf(w, "    %s %s\n", errorColor.Sprint("error."+e.Name), dimColor.Sprintf("= %d", e.Number))
	}
	for _, name := range s.Methods() {
		fmt.Fprintf(w, "    fn %s\n", nameColor.Sprint(name))
	}
}

func memberType(m *structure.Member) string {
	if m.Structure != nil {
		return m.Structure.String()
	}
	switch m.Type {
	case structure.MemberInt:
		return fmt.Sprintf("i%d", m.BitSize)
	case structure.MemberUint:
		return fmt.Sprintf("u%d", m.BitSize)
	case structure.MemberFloat:
		return fmt.Sprintf("f%d", m.BitSize)
	}
	return m.Type.String()
}

// describeWIT prints the WIT projection of structures: named type
// declarations first, then one signature per bound function.
func describeWIT(w io.Writer, structures []*structure.Structure) {
	mapper := witmap.New()
	var failures []string
	for _, s := range structures {
		switch s.Kind {
		case structure.KindStruct, structure.KindUnion, structure.KindEnum, structure.KindErrorSet:
			if _, err := mapper.Type(s); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", s, err))
			}
		}
	}
	var sigs []string
	for _, s := range structures {
		for _, name := range s.Methods() {
			fn, _ := s.Method(name)
			sig, err := mapper.Function(witmap.StaticName(s.Name, name), fn.Structure())
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s.%s: %v", s, name, err))
				continue
			}
			sigs = append(sigs, sig.String())
		}
	}
	for _, td := range mapper.Named() {
		fmt.Fprintln(w, witmap.Declaration(td))
	}
	for _, sig := range sigs {
		fmt.Fprintln(w, sig+";")
	}
	for _, f := range failures {
		fmt.Fprintln(w, dimColor.Sprint("// "+strings.ReplaceAll(f, "\n", " ")))
	}
}
