package symtable

import (
	"debug/elf"

	"github.com/pkg/errors"
)

var (
	ErrSymNotFound   = errors.New("symbol not found")
	ErrSymTableEmpty = errors.New("symtable is empty")
)

// ELFSymTab resolves instruction pointers to function names through an
// ELF file's symbol table. Lookups are linear over the table with a
// hit cache in front, which is enough for the repeated addresses a
// sampled profile produces.
type ELFSymTab struct {
	Symtab []elf.Symbol
	cache  map[uint64]string
}

func NewELFSymTab() *ELFSymTab {
	tab := new(ELFSymTab)
	tab.Symtab = make([]elf.Symbol, 0)
	tab.cache = make(map[uint64]string)

	return tab
}

// Load reads the symbol table of the ELF file at pathname. A table
// already loaded is kept, so Load is safe to call per sample batch.
func (e *ELFSymTab) Load(pathname string) error {
	if len(e.Symtab) > 0 {
		return nil
	}

	file, err := elf.Open(pathname)
	if err != nil {
		return errors.Wrap(err, "error opening ELF file")
	}
	defer file.Close()

	syms, err := file.Symbols()
	if err != nil {
		return errors.Wrap(err, "error reading ELF symtable section")
	}

	e.Symtab = syms

	return nil
}

// GetName returns the name of the function whose range covers the
// instruction pointer address.
func (e *ELFSymTab) GetName(ip uint64) (string, error) {
	if name, ok := e.cache[ip]; ok {
		return name, nil
	}

	if len(e.Symtab) == 0 {
		return "", ErrSymTableEmpty
	}

	for _, s := range e.Symtab {
		if ip >= s.Value && ip < (s.Value+s.Size) {
			if e.cache != nil {
				e.cache[ip] = s.Name
			}

			return s.Name, nil
		}
	}

	return "", ErrSymNotFound
}
