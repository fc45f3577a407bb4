package bytecode

import (
	"encoding/binary"
	"math"

	"gridcalc/internal/cell"
	"gridcalc/internal/value"
)

// Stamp records the dimension generation of a sheet a program read at
// compile time. A mismatch at run time invalidates the program.
type Stamp struct {
	Sheet      cell.SheetID
	Generation uint64
}

// Program is a compiled formula: a flat byte stream plus the constant,
// function and stamp tables it indexes into.
type Program struct {
	Code      []byte
	Constants []value.Value
	Funcs     []string
	Stamps    []Stamp
}

func New() *Program {
	return &Program{}
}

func (p *Program) WriteOp(op OpCode) {
	p.Code = append(p.Code, byte(op))
}

func (p *Program) WriteByte(b byte) {
	p.Code = append(p.Code, b)
}

func (p *Program) WriteU16(v uint16) {
	p.Code = binary.BigEndian.AppendUint16(p.Code, v)
}

func (p *Program) WriteU32(v uint32) {
	p.Code = binary.BigEndian.AppendUint32(p.Code, v)
}

func (p *Program) WriteF64(f float64) {
	p.Code = binary.BigEndian.AppendUint64(p.Code, math.Float64bits(f))
}

// PatchU16 overwrites a previously reserved u16 slot, for jump targets.
func (p *Program) PatchU16(pos int, v uint16) {
	binary.BigEndian.PutUint16(p.Code[pos:], v)
}

func (p *Program) ReadU16(ip int) uint16 {
	return binary.BigEndian.Uint16(p.Code[ip:])
}

func (p *Program) ReadU32(ip int) uint32 {
	return binary.BigEndian.Uint32(p.Code[ip:])
}

func (p *Program) ReadF64(ip int) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(p.Code[ip:]))
}

// AddConstant interns a value and returns its index. Text constants
// are deduplicated; anything else is appended as-is.
func (p *Program) AddConstant(v value.Value) int {
	if t, ok := v.(value.Text); ok {
		for i, c := range p.Constants {
			if c2, ok := c.(value.Text); ok && c2 == t {
				return i
			}
		}
	}
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// AddFunc interns a function name and returns its index.
func (p *Program) AddFunc(name string) int {
	for i, f := range p.Funcs {
		if f == name {
			return i
		}
	}
	p.Funcs = append(p.Funcs, name)
	return len(p.Funcs) - 1
}

// AddStamp records a sheet generation, once per sheet.
func (p *Program) AddStamp(sheet cell.SheetID, gen uint64) {
	for _, s := range p.Stamps {
		if s.Sheet == sheet {
			return
		}
	}
	p.Stamps = append(p.Stamps, Stamp{Sheet: sheet, Generation: gen})
}
