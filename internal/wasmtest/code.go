package wasmtest

import "bytes"

const (
	opIf       byte = 0x04
	opEnd      byte = 0x0b
	opReturn   byte = 0x0f
	opCall     byte = 0x10
	opDrop     byte = 0x1a
	opLocalGet byte = 0x20
	opLocalSet byte = 0x21
	opI32Load  byte = 0x28
	opI32Store byte = 0x36
	opI32Const byte = 0x41
	opI32Eqz   byte = 0x45
	opI32Eq    byte = 0x46
	opI32Add   byte = 0x6a
	opI32Sub   byte = 0x6b
	opI32And   byte = 0x71

	blockEmpty byte = 0x40
)

// Code is a function body. Methods append one instruction and return the
// receiver so bodies read top to bottom.
type Code struct {
	b []byte
}

// NewCode starts an empty body.
func NewCode() *Code { return &Code{} }

func (c *Code) op(op byte, imm ...uint32) *Code {
	c.b = append(c.b, op)
	for _, v := range imm {
		var buf bytes.Buffer
		writeU32(&buf, v)
		c.b = append(c.b, buf.Bytes()...)
	}
	return c
}

func (c *Code) I32Const(v int32) *Code {
	var buf bytes.Buffer
	writeS32(&buf, v)
	c.b = append(c.b, opI32Const)
	c.b = append(c.b, buf.Bytes()...)
	return c
}

func (c *Code) LocalGet(i uint32) *Code { return c.op(opLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code { return c.op(opLocalSet, i) }
func (c *Code) Call(fn uint32) *Code    { return c.op(opCall, fn) }
func (c *Code) Drop() *Code             { return c.op(opDrop) }
func (c *Code) Return() *Code           { return c.op(opReturn) }
func (c *Code) End() *Code              { return c.op(opEnd) }
func (c *Code) I32Eqz() *Code           { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code            { return c.op(opI32Eq) }
func (c *Code) I32Add() *Code           { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code           { return c.op(opI32Sub) }
func (c *Code) I32And() *Code           { return c.op(opI32And) }

// If opens a block without results; close it with End.
func (c *Code) If() *Code { return c.op(opIf, uint32(blockEmpty)) }

// I32Load loads from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code { return c.op(opI32Load, 2, offset) }

// I32Store stores the value on the stack at the address below it plus offset.
func (c *Code) I32Store(offset uint32) *Code { return c.op(opI32Store, 2, offset) }
