package isa

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseLine parses one instruction in text syntax:
//
//	CONVINIT kernel_h=3 kernel_w=3 ic=16 oc=32
//	CONVADDR @in=1:0x100 @weights=2:0x0 @out=3:0x40
//
// Integer values accept any Go literal base.
func ParseLine(v Version, line string) (Raw, error) {
	toks := strings.Fields(line)
	if len(toks) == 0 {
		return Raw{}, errors.New("empty instruction")
	}
	kind, err := ParseKind(strings.ToUpper(toks[0]))
	if err != nil {
		return Raw{}, err
	}

	fields := make(map[string]int64)
	var addrs []AddrEntry
	for _, tok := range toks[1:] {
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			return Raw{}, fmt.Errorf("%v: operand %q is not key=value", kind, tok)
		}
		if role, isAddr := strings.CutPrefix(key, "@"); isAddr {
			a, err := parseAddrToken(role, val)
			if err != nil {
				return Raw{}, fmt.Errorf("%v: %w", kind, err)
			}
			addrs = append(addrs, a)
			continue
		}
		n, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return Raw{}, fmt.Errorf("%v: field %s: %w", kind, key, err)
		}
		if _, dup := fields[key]; dup {
			return Raw{}, fmt.Errorf("%v: field %s given twice", kind, key)
		}
		fields[key] = n
	}
	return Encode(v, kind, fields, addrs)
}

func parseAddrToken(role, val string) (AddrEntry, error) {
	r, err := ParseRole(role)
	if err != nil {
		return AddrEntry{}, err
	}
	reg, addr, ok := strings.Cut(val, ":")
	if !ok {
		return AddrEntry{}, fmt.Errorf("address %q is not reg:addr", val)
	}
	regID, err := strconv.ParseInt(reg, 0, 64)
	if err != nil {
		return AddrEntry{}, fmt.Errorf("address reg_id: %w", err)
	}
	off, err := strconv.ParseInt(addr, 0, 64)
	if err != nil {
		return AddrEntry{}, fmt.Errorf("address offset: %w", err)
	}
	return AddrEntry{Role: r, RegID: int(regID), Addr: int(off)}, nil
}

// ReadText parses a text stream. Blank lines and lines starting with '#'
// are skipped.
func ReadText(v Version, r io.Reader) ([]Raw, error) {
	var raws []Raw
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := ParseLine(v, line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		raws = append(raws, raw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read instructions: %w", err)
	}
	return raws, nil
}

// ParseText reads and decodes a text stream.
func ParseText(v Version, r io.Reader) (Stream, error) {
	raws, err := ReadText(v, r)
	if err != nil {
		return Stream{}, err
	}
	return DecodeStream(v, raws)
}

// WriteText writes one instruction per line.
func WriteText(w io.Writer, s Stream) error {
	for _, in := range s.Instructions {
		if _, err := fmt.Fprintln(w, in.String()); err != nil {
			return err
		}
	}
	return nil
}

// Binary streams are little-endian 32-bit words. Each record starts with a
// header word holding the opcode in bits [31:24] and the operand word count
// in bits [15:0].
const maxRecordWords = 1<<16 - 1

// ReadBinary parses a binary stream.
func ReadBinary(r io.Reader) ([]Raw, error) {
	var raws []Raw
	for {
		var hdr uint32
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			if errors.Is(err, io.EOF) {
				return raws, nil
			}
			return nil, fmt.Errorf("record %d header: %w", len(raws), err)
		}
		words := make([]uint32, hdr&maxRecordWords)
		if err := binary.Read(r, binary.LittleEndian, words); err != nil {
			return nil, fmt.Errorf("record %d operands: %w", len(raws), err)
		}
		raws = append(raws, Raw{Opcode: hdr >> 24, Words: words})
	}
}

// WriteBinary writes raws in the binary stream format.
func WriteBinary(w io.Writer, raws []Raw) error {
	for i, r := range raws {
		if r.Opcode > 0xFF || len(r.Words) > maxRecordWords {
			return fmt.Errorf("record %d does not fit a header word", i)
		}
		hdr := r.Opcode<<24 | uint32(len(r.Words))
		if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, r.Words); err != nil {
			return err
		}
	}
	return nil
}
