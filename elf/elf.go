// Package elf extracts eBPF programs from compiled object files.
package elf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
	"golang.org/x/exp/slices"

	"github.com/SeanHeelan/ebpf-verifier/asm"
)

// Sections returns the names of all program sections in the object file,
// sorted.
func Sections(path string) ([]string, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("elf: reading %s: %w", path, err)
	}
	var out []string
	for _, prog := range spec.Programs {
		if !slices.Contains(out, prog.SectionName) {
			out = append(out, prog.SectionName)
		}
	}
	slices.Sort(out)
	return out, nil
}

// LoadProgram returns the decoded instruction stream of the program found
// in the given section (or with the given name).
func LoadProgram(path, section string) ([]asm.Inst, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("elf: reading %s: %w", path, err)
	}
	for name, prog := range spec.Programs {
		if prog.SectionName != section && name != section {
			continue
		}
		var buf bytes.Buffer
		if err := prog.Instructions.Marshal(&buf, binary.LittleEndian); err != nil {
			return nil, fmt.Errorf("elf: marshaling %s: %w", name, err)
		}
		insts, err := asm.Decode(buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("elf: section %s: %w", section, err)
		}
		return insts, nil
	}
	return nil, fmt.Errorf("elf: no program in section %q", section)
}
