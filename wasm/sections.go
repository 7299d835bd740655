package wasm

import (
	"fmt"

	"github.com/vertexdlt/wasmkit/util"
)

// Section ids, matching the dispatch table this toolkit recognizes.
// Table (4) and Memory (5) sections are out of scope: fixtures never
// populate them and this toolkit never defines its own tables or
// linear memory.
const (
	secCustom   byte = 0
	secType     byte = 1
	secImport   byte = 2
	secFunction byte = 3
	secGlobal   byte = 6
	secExport   byte = 7
	secStart    byte = 8
	secElement  byte = 9
	secCode     byte = 10
	secData     byte = 11
)

// Section is a single section body, in its decode-order position
// within the Module. Header bytes (id + LEB128 size) are written
// generically by Module.Encode; EncodeBody writes only the payload.
type Section interface {
	ID() byte
	EncodeBody(buf *util.Buffer)
}

// --- Type section -----------------------------------------------------

// TypeSec is the Type section: a vector of function types.
type TypeSec struct {
	FuncTypes []FuncType
}

func (s *TypeSec) ID() byte { return secType }

func (s *TypeSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.FuncTypes)))
	for _, ft := range s.FuncTypes {
		ft.encode(buf)
	}
}

func readTypeSec(r *util.ByteReader) (*TypeSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &TypeSec{FuncTypes: make([]FuncType, n)}
	for i := range s.FuncTypes {
		if s.FuncTypes[i], err = readFuncType(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Import section ----------------------------------------------------

// Import external kinds.
const (
	ExternalFunction byte = 0x00
	ExternalTable    byte = 0x01
	ExternalMemory   byte = 0x02
	ExternalGlobal   byte = 0x03
)

// Import represents a single imported entity.
type Import struct {
	Module string
	Field  string
	Kind   byte

	TypeIndex  uint32
	Table      TableType
	Mem        MemType
	GlobalType GlobalType
}

// ImportSec is the Import section.
type ImportSec struct {
	Imports []Import
}

func (s *ImportSec) ID() byte { return secImport }

func (s *ImportSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Imports)))
	for _, im := range s.Imports {
		buf.WriteString(im.Module)
		buf.WriteString(im.Field)
		buf.WriteByte(im.Kind)
		switch im.Kind {
		case ExternalFunction:
			buf.WriteU32(im.TypeIndex)
		case ExternalTable:
			im.Table.encode(buf)
		case ExternalMemory:
			im.Mem.encode(buf)
		case ExternalGlobal:
			im.GlobalType.encode(buf)
		}
	}
}

func readImportSec(r *util.ByteReader) (*ImportSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &ImportSec{Imports: make([]Import, n)}
	for i := range s.Imports {
		im := &s.Imports[i]
		if im.Module, err = readName(r); err != nil {
			return nil, err
		}
		if im.Field, err = readName(r); err != nil {
			return nil, err
		}
		if im.Kind, err = r.ReadByte(); err != nil {
			return nil, err
		}
		switch im.Kind {
		case ExternalFunction:
			im.TypeIndex, err = r.ReadU32()
		case ExternalTable:
			im.Table, err = readTableType(r)
		case ExternalMemory:
			im.Mem, err = readMemType(r)
		case ExternalGlobal:
			im.GlobalType, err = readGlobalType(r)
		default:
			err = fmt.Errorf("wasm: invalid import kind %#x at offset %d", im.Kind, r.Offset()-1)
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Function section ----------------------------------------------------

// FunctionSec is the Function section: one Type index per defined
// function, aligned with the Code section.
type FunctionSec struct {
	TypeIndices []uint32
}

func (s *FunctionSec) ID() byte { return secFunction }

func (s *FunctionSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.TypeIndices)))
	for _, idx := range s.TypeIndices {
		buf.WriteU32(idx)
	}
}

func readFunctionSec(r *util.ByteReader) (*FunctionSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &FunctionSec{TypeIndices: make([]uint32, n)}
	for i := range s.TypeIndices {
		if s.TypeIndices[i], err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Global section ----------------------------------------------------

// Global is a single global variable: its type and its constant
// initializer expression.
type Global struct {
	Type GlobalType
	Init []Instruction
}

// GlobalSec is the Global section.
type GlobalSec struct {
	Globals []Global
}

func (s *GlobalSec) ID() byte { return secGlobal }

func (s *GlobalSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Globals)))
	for _, g := range s.Globals {
		g.Type.encode(buf)
		encodeExpression(buf, g.Init)
		buf.WriteByte(byte(OpEnd))
	}
}

func readGlobalSec(r *util.ByteReader) (*GlobalSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &GlobalSec{Globals: make([]Global, n)}
	for i := range s.Globals {
		if s.Globals[i].Type, err = readGlobalType(r); err != nil {
			return nil, err
		}
		if s.Globals[i].Init, _, err = readExpression(r, false); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Export section ----------------------------------------------------

// Export external kinds (same numbering as Import kinds).
const (
	ExportKindFunction = ExternalFunction
	ExportKindTable    = ExternalTable
	ExportKindMemory   = ExternalMemory
	ExportKindGlobal   = ExternalGlobal
)

// Export is a single exported entity.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// ExportSec is the Export section. Exports is ordered by decode
// position so re-encoding reproduces the original byte layout;
// duplicate names are rejected at decode time (§3 invariant).
type ExportSec struct {
	Exports []Export
}

func (s *ExportSec) ID() byte { return secExport }

func (s *ExportSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Exports)))
	for _, e := range s.Exports {
		buf.WriteString(e.Name)
		buf.WriteByte(e.Kind)
		buf.WriteU32(e.Index)
	}
}

func readExportSec(r *util.ByteReader) (*ExportSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &ExportSec{Exports: make([]Export, n)}
	seen := make(map[string]bool, n)
	for i := range s.Exports {
		e := &s.Exports[i]
		if e.Name, err = readName(r); err != nil {
			return nil, err
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("wasm: duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
		if e.Kind, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if e.Kind != ExportKindFunction && e.Kind != ExportKindTable && e.Kind != ExportKindMemory && e.Kind != ExportKindGlobal {
			return nil, fmt.Errorf("wasm: invalid export kind %#x at offset %d", e.Kind, r.Offset()-1)
		}
		if e.Index, err = r.ReadU32(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Start section ----------------------------------------------------

// StartSec names the function invoked automatically on instantiation.
type StartSec struct {
	FuncIndex uint32
}

func (s *StartSec) ID() byte { return secStart }

func (s *StartSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(s.FuncIndex)
}

func readStartSec(r *util.ByteReader) (*StartSec, error) {
	idx, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return &StartSec{FuncIndex: idx}, nil
}

// --- Element section ----------------------------------------------------

// Element initializes a range of a table with function indices.
type Element struct {
	TableIndex  uint32
	Offset      []Instruction
	FuncIndices []uint32
}

// ElementSec is the Element section.
type ElementSec struct {
	Elements []Element
}

func (s *ElementSec) ID() byte { return secElement }

func (s *ElementSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Elements)))
	for _, e := range s.Elements {
		buf.WriteU32(e.TableIndex)
		encodeExpression(buf, e.Offset)
		buf.WriteByte(byte(OpEnd))
		buf.WriteU32(uint32(len(e.FuncIndices)))
		for _, idx := range e.FuncIndices {
			buf.WriteU32(idx)
		}
	}
}

func readElementSec(r *util.ByteReader) (*ElementSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &ElementSec{Elements: make([]Element, n)}
	for i := range s.Elements {
		e := &s.Elements[i]
		if e.TableIndex, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if e.Offset, _, err = readExpression(r, false); err != nil {
			return nil, err
		}
		count, err2 := r.ReadU32()
		if err2 != nil {
			return nil, err2
		}
		e.FuncIndices = make([]uint32, count)
		for j := range e.FuncIndices {
			if e.FuncIndices[j], err = r.ReadU32(); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// --- Code section ----------------------------------------------------

// LocalEntry declares Count locals of the same Type.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// Code is a single function body: its local declarations and its
// instruction tree.
type Code struct {
	Locals []LocalEntry
	Body   []Instruction
}

// bodySize returns the encoded length of the local-entry vector plus
// the expression plus its terminating End byte — the value the
// on-disk function_body_size field must equal.
func (c Code) bodySize() uint32 {
	n := leb128SizeU32(uint32(len(c.Locals)))
	for _, le := range c.Locals {
		n += leb128SizeU32(le.Count) + 1
	}
	n += expressionSize(c.Body) + 1
	return uint32(n)
}

// CodeSec is the Code section.
type CodeSec struct {
	Codes []Code
}

func (s *CodeSec) ID() byte { return secCode }

func (s *CodeSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Codes)))
	for _, c := range s.Codes {
		buf.WriteU32(c.bodySize())
		buf.WriteU32(uint32(len(c.Locals)))
		for _, le := range c.Locals {
			buf.WriteU32(le.Count)
			buf.WriteByte(byte(le.Type))
		}
		encodeExpression(buf, c.Body)
		buf.WriteByte(byte(OpEnd))
	}
}

func readCodeSec(r *util.ByteReader) (*CodeSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &CodeSec{Codes: make([]Code, n)}
	for i := range s.Codes {
		size, err2 := r.ReadU32()
		if err2 != nil {
			return nil, err2
		}
		start := r.Offset()
		bodyBytes, err2 := r.ReadBytes(size)
		if err2 != nil {
			return nil, err2
		}
		bodyReader := util.NewByteReader(bodyBytes)

		localCount, err2 := bodyReader.ReadU32()
		if err2 != nil {
			return nil, err2
		}
		locals := make([]LocalEntry, localCount)
		for j := range locals {
			if locals[j].Count, err2 = bodyReader.ReadU32(); err2 != nil {
				return nil, err2
			}
			if locals[j].Type, err2 = readValueType(bodyReader); err2 != nil {
				return nil, err2
			}
		}
		body, _, err2 := readExpression(bodyReader, false)
		if err2 != nil {
			return nil, err2
		}
		if bodyReader.Len() != 0 {
			return nil, fmt.Errorf("wasm: code entry at offset %d declares size %d but %d trailing bytes remain", start, size, bodyReader.Len())
		}

		s.Codes[i] = Code{Locals: locals, Body: body}
	}
	return s, nil
}

// --- Data section ----------------------------------------------------

// Data initializes a range of linear memory with raw bytes.
type Data struct {
	MemIndex uint32
	Offset   []Instruction
	Init     []byte
}

// DataSec is the Data section.
type DataSec struct {
	Entries []Data
}

func (s *DataSec) ID() byte { return secData }

func (s *DataSec) EncodeBody(buf *util.Buffer) {
	buf.WriteU32(uint32(len(s.Entries)))
	for _, d := range s.Entries {
		buf.WriteU32(d.MemIndex)
		encodeExpression(buf, d.Offset)
		buf.WriteByte(byte(OpEnd))
		buf.WriteVec(d.Init)
	}
}

func readDataSec(r *util.ByteReader) (*DataSec, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	s := &DataSec{Entries: make([]Data, n)}
	for i := range s.Entries {
		d := &s.Entries[i]
		if d.MemIndex, err = r.ReadU32(); err != nil {
			return nil, err
		}
		if d.Offset, _, err = readExpression(r, false); err != nil {
			return nil, err
		}
		count, err2 := r.ReadU32()
		if err2 != nil {
			return nil, err2
		}
		if d.Init, err = r.ReadBytes(count); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// --- Custom section ----------------------------------------------------

// CustomSec is an opaque, named section the decoder neither
// interprets nor validates, kept only so encode(decode(f)) == f.
type CustomSec struct {
	Name    string
	Payload []byte
}

func (s *CustomSec) ID() byte { return secCustom }

func (s *CustomSec) EncodeBody(buf *util.Buffer) {
	buf.WriteString(s.Name)
	buf.WriteBytes(s.Payload)
}

func readCustomSec(r *util.ByteReader) (*CustomSec, error) {
	name, err := readName(r)
	if err != nil {
		return nil, err
	}
	return &CustomSec{Name: name, Payload: r.Rest()}, nil
}
