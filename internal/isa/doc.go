// Package isa models DPU instructions and their per-version opcode tables.
//
// A raw instruction is an opcode plus a list of 32-bit operand words. Every
// ISA version owns an independent opcode table; the same opcode can name
// different instruction kinds in different versions, or nothing at all.
// Versions are not layered on one another: each table is a closed set.
//
// Decode looks the pair (version, opcode) up in one table, then extracts
// the kind's bit fields from the operand words according to its Layout.
// Encode is the inverse and is what scenarios and tests use to build
// streams by field name.
//
// Unknown versions and unknown opcodes are DispatchErrors. There is no
// fallback from one version's table to another.
package isa
