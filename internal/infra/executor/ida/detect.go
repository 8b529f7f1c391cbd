package ida

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"os"
)

var ErrUnknownFormat = errors.New("unknown executable format")

// Is64Bit reports whether the executable at path is a 64-bit ELF, PE or Mach-O image.
func Is64Bit(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, err
	}

	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return f.Class == elf.ELFCLASS64, nil
	}

	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		_, ok := f.OptionalHeader.(*pe.OptionalHeader64)
		return ok, nil
	}

	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return f.Magic == macho.Magic64, nil
	}

	// universal binaries: 64-bit if any slice is
	if f, err := macho.OpenFat(path); err == nil {
		defer f.Close()
		for _, arch := range f.Arches {
			if arch.Magic == macho.Magic64 {
				return true, nil
			}
		}
		return false, nil
	}

	return false, ErrUnknownFormat
}
