package wasm

import (
	"bytes"
	"fmt"

	"github.com/vertexdlt/wasmkit/util"
)

// magic is the 4-byte Wasm header ("\0asm"); version is the only
// binary format version this toolkit decodes.
var magic = [4]byte{0x00, 0x61, 0x73, 0x6D}

const version uint32 = 1

// Module is a decoded Wasm binary: its section list in original
// decode order (so Encode reproduces the source bytes exactly,
// custom sections included) plus typed accessors for the sections
// this toolkit actually uses.
type Module struct {
	Sections []Section

	Type     *TypeSec
	Import   *ImportSec
	Function *FunctionSec
	Global   *GlobalSec
	Export   *ExportSec
	Start    *StartSec
	Element  *ElementSec
	Code     *CodeSec
	Data     *DataSec
	Customs  []*CustomSec
}

// section ids in the order Wasm requires non-custom sections to
// appear; custom sections may appear anywhere, any number of times.
var sectionOrder = []byte{
	secType, secImport, secFunction, secGlobal,
	secExport, secStart, secElement, secCode, secData,
}

func sectionOrderIndex(id byte) int {
	for i, want := range sectionOrder {
		if id == want {
			return i
		}
	}
	return -1
}

// Decode parses a complete Wasm binary module, validating the header,
// section ordering, and the cross-section structural invariants named
// in §3: every Type index used by Import/Function must be in range,
// the Function and Code sections must declare the same count, and
// every function or global Export index must be in range (table and
// memory export indices are not checked).
func Decode(data []byte) (*Module, error) {
	r := util.NewByteReader(data)

	hdr, err := r.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("wasm: reading magic: %w", err)
	}
	if !bytes.Equal(hdr, magic[:]) {
		return nil, fmt.Errorf("wasm: not a Wasm binary (bad magic %x)", hdr)
	}
	ver, err := r.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("wasm: reading version: %w", err)
	}
	gotVer := uint32(ver[0]) | uint32(ver[1])<<8 | uint32(ver[2])<<16 | uint32(ver[3])<<24
	if gotVer != version {
		return nil, fmt.Errorf("wasm: unsupported version %d", gotVer)
	}

	m := &Module{}
	lastOrder := -1
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("wasm: reading section id: %w", err)
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("wasm: reading section %#x size: %w", id, err)
		}
		body, err := r.ReadBytes(size)
		if err != nil {
			return nil, fmt.Errorf("wasm: reading section %#x body: %w", id, err)
		}
		br := util.NewByteReader(body)

		if id != secCustom {
			order := sectionOrderIndex(id)
			if order == -1 {
				return nil, fmt.Errorf("wasm: unrecognized section id %#x", id)
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("wasm: section %#x out of order", id)
			}
			lastOrder = order
		}

		sec, err := decodeSection(id, br)
		if err != nil {
			return nil, err
		}
		if br.Len() != 0 {
			return nil, fmt.Errorf("wasm: section %#x declares size %d but %d trailing bytes remain", id, size, br.Len())
		}
		m.Sections = append(m.Sections, sec)
		attachSection(m, sec)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeSection(id byte, r *util.ByteReader) (Section, error) {
	switch id {
	case secCustom:
		return readCustomSec(r)
	case secType:
		return readTypeSec(r)
	case secImport:
		return readImportSec(r)
	case secFunction:
		return readFunctionSec(r)
	case secGlobal:
		return readGlobalSec(r)
	case secExport:
		return readExportSec(r)
	case secStart:
		return readStartSec(r)
	case secElement:
		return readElementSec(r)
	case secCode:
		return readCodeSec(r)
	case secData:
		return readDataSec(r)
	default:
		return nil, fmt.Errorf("wasm: unrecognized section id %#x", id)
	}
}

func attachSection(m *Module, sec Section) {
	switch s := sec.(type) {
	case *TypeSec:
		m.Type = s
	case *ImportSec:
		m.Import = s
	case *FunctionSec:
		m.Function = s
	case *GlobalSec:
		m.Global = s
	case *ExportSec:
		m.Export = s
	case *StartSec:
		m.Start = s
	case *ElementSec:
		m.Element = s
	case *CodeSec:
		m.Code = s
	case *DataSec:
		m.Data = s
	case *CustomSec:
		m.Customs = append(m.Customs, s)
	}
}

// numTypes returns len(Type.FuncTypes), 0 if absent.
func (m *Module) numTypes() int {
	if m.Type == nil {
		return 0
	}
	return len(m.Type.FuncTypes)
}

// NumImportedFunctions returns how many Import entries are functions;
// these occupy the low end of the function index space, ahead of the
// Function section's locally defined functions.
func (m *Module) NumImportedFunctions() int {
	if m.Import == nil {
		return 0
	}
	n := 0
	for _, im := range m.Import.Imports {
		if im.Kind == ExternalFunction {
			n++
		}
	}
	return n
}

// NumFunctions returns the total function index space size: imported
// functions plus locally defined ones.
func (m *Module) NumFunctions() int {
	n := m.NumImportedFunctions()
	if m.Function != nil {
		n += len(m.Function.TypeIndices)
	}
	return n
}

// NumGlobals returns the size of the global index space.
func (m *Module) NumGlobals() int {
	if m.Global == nil {
		return 0
	}
	return len(m.Global.Globals)
}

// validate checks the structural invariants §3 requires beyond what
// per-section decoding already enforces: type indices resolve,
// Function/Code counts agree, and function and global export indices
// are in range; table and memory export indices are not checked.
// Export name uniqueness is checked during
// readExportSec, since it only needs the Export section itself.
func (m *Module) validate() error {
	numTypes := m.numTypes()
	if m.Import != nil {
		for _, im := range m.Import.Imports {
			if im.Kind == ExternalFunction && int(im.TypeIndex) >= numTypes {
				return fmt.Errorf("wasm: import %q.%q references out-of-range type index %d", im.Module, im.Field, im.TypeIndex)
			}
		}
	}
	if m.Function != nil {
		for _, idx := range m.Function.TypeIndices {
			if int(idx) >= numTypes {
				return fmt.Errorf("wasm: function section references out-of-range type index %d", idx)
			}
		}
		codeLen := 0
		if m.Code != nil {
			codeLen = len(m.Code.Codes)
		}
		if codeLen != len(m.Function.TypeIndices) {
			return fmt.Errorf("wasm: function section declares %d functions but code section has %d bodies", len(m.Function.TypeIndices), codeLen)
		}
	} else if m.Code != nil && len(m.Code.Codes) != 0 {
		return fmt.Errorf("wasm: code section present with %d bodies but no function section", len(m.Code.Codes))
	}

	numFuncs := m.NumFunctions()
	numGlobals := m.NumGlobals()
	if m.Export != nil {
		for _, e := range m.Export.Exports {
			switch e.Kind {
			case ExportKindFunction:
				if int(e.Index) >= numFuncs {
					return fmt.Errorf("wasm: export %q references out-of-range function index %d", e.Name, e.Index)
				}
			case ExportKindGlobal:
				if int(e.Index) >= numGlobals {
					return fmt.Errorf("wasm: export %q references out-of-range global index %d", e.Name, e.Index)
				}
			}
		}
	}
	if m.Start != nil && int(m.Start.FuncIndex) >= numFuncs {
		return fmt.Errorf("wasm: start section references out-of-range function index %d", m.Start.FuncIndex)
	}
	return nil
}

// Encode serializes the module back to bytes, writing sections in
// the exact order Decode read them so encode(decode(f)) == f for any
// well-formed input.
func (m *Module) Encode() []byte {
	buf := util.NewBuffer()
	buf.WriteBytes(magic[:])
	buf.WriteBytes([]byte{byte(version), 0, 0, 0})

	for _, sec := range m.Sections {
		body := util.NewBuffer()
		sec.EncodeBody(body)
		buf.WriteByte(sec.ID())
		buf.WriteU32(uint32(body.Len()))
		buf.WriteBytes(body.Bytes())
	}
	return buf.Bytes()
}

// FuncType returns the signature of the function at the given index
// in the combined import+local function index space.
func (m *Module) FuncType(funcIndex uint32) (FuncType, error) {
	typeIdx, ok := m.funcTypeIndex(funcIndex)
	if !ok {
		return FuncType{}, fmt.Errorf("wasm: function index %d out of range", funcIndex)
	}
	if m.Type == nil || int(typeIdx) >= len(m.Type.FuncTypes) {
		return FuncType{}, fmt.Errorf("wasm: function index %d references out-of-range type index %d", funcIndex, typeIdx)
	}
	return m.Type.FuncTypes[typeIdx], nil
}

func (m *Module) funcTypeIndex(funcIndex uint32) (uint32, bool) {
	imported := uint32(m.NumImportedFunctions())
	if funcIndex < imported {
		i := uint32(0)
		for _, im := range m.Import.Imports {
			if im.Kind != ExternalFunction {
				continue
			}
			if i == funcIndex {
				return im.TypeIndex, true
			}
			i++
		}
		return 0, false
	}
	local := funcIndex - imported
	if m.Function == nil || int(local) >= len(m.Function.TypeIndices) {
		return 0, false
	}
	return m.Function.TypeIndices[local], true
}

// IsImportedFunc reports whether funcIndex names an imported function
// rather than one with a Code section body.
func (m *Module) IsImportedFunc(funcIndex uint32) bool {
	return funcIndex < uint32(m.NumImportedFunctions())
}

// LocalCodeIndex converts a module-wide function index into an index
// into Code.Codes, valid only when !IsImportedFunc(funcIndex).
func (m *Module) LocalCodeIndex(funcIndex uint32) uint32 {
	return funcIndex - uint32(m.NumImportedFunctions())
}

// ImportRef identifies which import a function index corresponds to,
// valid only when IsImportedFunc(funcIndex).
func (m *Module) ImportRef(funcIndex uint32) Import {
	i := uint32(0)
	for _, im := range m.Import.Imports {
		if im.Kind != ExternalFunction {
			continue
		}
		if i == funcIndex {
			return im
		}
		i++
	}
	panic("wasm: ImportRef called with non-function or out-of-range index")
}
