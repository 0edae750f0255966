// Package wasmtest assembles small WebAssembly modules for tests. Only i32
// values and the handful of instructions the tests need are supported.
package wasmtest

import "bytes"

const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"
)

// Section IDs.
const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11
)

// Import/export kinds.
const (
	kindFunc   byte = 0
	kindMemory byte = 2
)

const valI32 byte = 0x7F

type funcType struct {
	params, results int
}

type importFunc struct {
	module, name string
	typ          uint32
}

type function struct {
	name   string
	typ    uint32
	locals int
	body   []byte
}

type segment struct {
	offset uint32
	data   []byte
}

// Module is a module under construction. Imports must be declared before
// functions so that function indices are stable.
type Module struct {
	types   []funcType
	imports []importFunc
	funcs   []function
	data    []segment
	pages   uint32
}

// New creates an empty module with pages of exported memory.
func New(pages uint32) *Module {
	return &Module{pages: pages}
}

func (m *Module) typeIndex(params, results int) uint32 {
	ft := funcType{params, results}
	for i, t := range m.types {
		if t == ft {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// Import declares an imported function and returns its function index.
func (m *Module) Import(module, name string, params, results int) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: import declared after a function")
	}
	m.imports = append(m.imports, importFunc{module, name, m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func adds a function and returns its index. A non-empty name exports it.
func (m *Module) Func(name string, params, results, locals int, body *Code) uint32 {
	m.funcs = append(m.funcs, function{name, m.typeIndex(params, results), locals, body.b})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Data places b at offset when the module is instantiated.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset, append([]byte(nil), b...)})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	out.WriteString(magic)
	out.WriteString(version)

	var sec bytes.Buffer
	writeU32(&sec, uint32(len(m.types)))
	for _, t := range m.types {
		sec.WriteByte(0x60)
		writeValTypes(&sec, t.params)
		writeValTypes(&sec, t.results)
	}
	writeSection(&out, sectionType, sec.Bytes())

	sec.Reset()
	writeU32(&sec, uint32(len(m.imports)))
	for _, im := range m.imports {
		writeName(&sec, im.module)
		writeName(&sec, im.name)
		sec.WriteByte(kindFunc)
		writeU32(&sec, im.typ)
	}
	writeSection(&out, sectionImport, sec.Bytes())

	sec.Reset()
	writeU32(&sec, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		writeU32(&sec, f.typ)
	}
	writeSection(&out, sectionFunction, sec.Bytes())

	sec.Reset()
	writeU32(&sec, 1)
	sec.WriteByte(0x00) // min only
	writeU32(&sec, m.pages)
	writeSection(&out, sectionMemory, sec.Bytes())

	sec.Reset()
	exports := 1
	for _, f := range m.funcs {
		if f.name != "" {
			exports++
		}
	}
	writeU32(&sec, uint32(exports))
	writeName(&sec, "memory")
	sec.WriteByte(kindMemory)
	writeU32(&sec, 0)
	for i, f := range m.funcs {
		if f.name == "" {
			continue
		}
		writeName(&sec, f.name)
		sec.WriteByte(kindFunc)
		writeU32(&sec, uint32(len(m.imports)+i))
	}
	writeSection(&out, sectionExport, sec.Bytes())

	sec.Reset()
	writeU32(&sec, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		var body bytes.Buffer
		if f.locals > 0 {
			writeU32(&body, 1)
			writeU32(&body, uint32(f.locals))
			body.WriteByte(valI32)
		} else {
			writeU32(&body, 0)
		}
		body.Write(f.body)
		body.WriteByte(opEnd)
		writeU32(&sec, uint32(body.Len()))
		sec.Write(body.Bytes())
	}
	writeSection(&out, sectionCode, sec.Bytes())

	if len(m.data) > 0 {
		sec.Reset()
		writeU32(&sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteByte(0x00) // active, memory 0
			sec.WriteByte(opI32Const)
			writeS32(&sec, int32(d.offset))
			sec.WriteByte(opEnd)
			writeU32(&sec, uint32(len(d.data)))
			sec.Write(d.data)
		}
		writeSection(&out, sectionData, sec.Bytes())
	}
	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeU32(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, n int) {
	writeU32(w, uint32(n))
	for range n {
		w.WriteByte(valI32)
	}
}

func writeName(w *bytes.Buffer, s string) {
	writeU32(w, uint32(len(s)))
	w.WriteString(s)
}

// writeU32 writes an unsigned LEB128 value.
func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// writeS32 writes a signed LEB128 value.
func writeS32(w *bytes.Buffer, v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}
