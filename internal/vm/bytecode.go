package vm

import (
	"encoding/binary"
	"fmt"
)

// Bytecode layout. A deployed contract and a transaction script share
// one encoding; a script is simply a contract with zero fields and a
// single method at index 0.
//
//	contract   := fieldCount:u16 fieldType:u8{fieldCount} methodCount:u16 method{methodCount}
//	method     := flags:u8 argCount:u16 argType:u8{argCount} localsLength:u16
//	              retCount:u16 retType:u8{retCount} instrCount:u16 instr{instrCount}
//	instr      := op:u16 intOperand:i64 byteLen:u16 bytes:u8{byteLen}
//
// flags bit0=IsPublic bit1=UsesAssets bit2=UsePreapprovedAssets.
func putU16(buf []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(buf, v) }
func putI64(buf []byte, v int64) []byte  { return binary.BigEndian.AppendUint64(buf, uint64(v)) }

// EncodeContract serializes c into the shared bytecode format.
func EncodeContract(c *Contract) []byte {
	buf := putU16(nil, uint16(len(c.FieldTypes)))
	for _, t := range c.FieldTypes {
		buf = append(buf, byte(t))
	}
	buf = putU16(buf, uint16(len(c.Methods)))
	for i := range c.Methods {
		buf = encodeMethod(buf, &c.Methods[i])
	}
	return buf
}

func encodeMethod(buf []byte, m *Method) []byte {
	var flags byte
	if m.IsPublic {
		flags |= 1
	}
	if m.UsesAssets {
		flags |= 2
	}
	if m.UsePreapprovedAssets {
		flags |= 4
	}
	buf = append(buf, flags)
	buf = putU16(buf, uint16(len(m.ArgsType)))
	for _, t := range m.ArgsType {
		buf = append(buf, byte(t))
	}
	buf = putU16(buf, uint16(m.LocalsLength))
	buf = putU16(buf, uint16(len(m.ReturnType)))
	for _, t := range m.ReturnType {
		buf = append(buf, byte(t))
	}
	buf = putU16(buf, uint16(len(m.Instrs)))
	for _, in := range m.Instrs {
		buf = putU16(buf, uint16(in.Op))
		buf = putI64(buf, in.IntOperand)
		buf = putU16(buf, uint16(len(in.Bytes)))
		buf = append(buf, in.Bytes...)
	}
	return buf
}

// byteReader walks a bytecode buffer, returning ErrInvalidInstrOffset
// on any short read rather than panicking on a malformed script.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) u8() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrInvalidInstrOffset
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, ErrInvalidInstrOffset
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) i64() (int64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrInvalidInstrOffset
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
	r.pos += 8
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, ErrInvalidInstrOffset
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// DecodeContract parses bytes previously produced by EncodeContract.
func DecodeContract(data []byte) (*Contract, error) {
	r := &byteReader{buf: data}
	fieldCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("vm: decode contract field count: %w", err)
	}
	fields := make([]ValType, fieldCount)
	for i := range fields {
		b, err := r.u8()
		if err != nil {
			return nil, err
		}
		fields[i] = ValType(b)
	}
	methodCount, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("vm: decode contract method count: %w", err)
	}
	methods := make([]Method, methodCount)
	for i := range methods {
		m, err := decodeMethod(r)
		if err != nil {
			return nil, fmt.Errorf("vm: decode method %d: %w", i, err)
		}
		methods[i] = m
	}
	return &Contract{FieldTypes: fields, Methods: methods}, nil
}

func decodeMethod(r *byteReader) (Method, error) {
	flags, err := r.u8()
	if err != nil {
		return Method{}, err
	}
	m := Method{
		IsPublic:             flags&1 != 0,
		UsesAssets:           flags&2 != 0,
		UsePreapprovedAssets: flags&4 != 0,
	}
	argCount, err := r.u16()
	if err != nil {
		return Method{}, err
	}
	m.ArgsType = make([]ValType, argCount)
	for i := range m.ArgsType {
		b, err := r.u8()
		if err != nil {
			return Method{}, err
		}
		m.ArgsType[i] = ValType(b)
	}
	locals, err := r.u16()
	if err != nil {
		return Method{}, err
	}
	m.LocalsLength = int(locals)
	retCount, err := r.u16()
	if err != nil {
		return Method{}, err
	}
	m.ReturnType = make([]ValType, retCount)
	for i := range m.ReturnType {
		b, err := r.u8()
		if err != nil {
			return Method{}, err
		}
		m.ReturnType[i] = ValType(b)
	}
	instrCount, err := r.u16()
	if err != nil {
		return Method{}, err
	}
	m.Instrs = make([]Instruction, instrCount)
	for i := range m.Instrs {
		op, err := r.u16()
		if err != nil {
			return Method{}, err
		}
		iv, err := r.i64()
		if err != nil {
			return Method{}, err
		}
		blen, err := r.u16()
		if err != nil {
			return Method{}, err
		}
		b, err := r.bytes(int(blen))
		if err != nil {
			return Method{}, err
		}
		m.Instrs[i] = Instruction{Op: Opcode(op), IntOperand: iv, Bytes: append([]byte(nil), b...)}
	}
	return m, nil
}
