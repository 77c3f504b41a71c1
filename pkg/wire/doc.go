// Package wire implements the binary encoding shared by statum stores and
// the remote protocol.
//
// Messages use the protobuf wire format: every field is a tag followed by a
// varint, fixed64 or length-delimited payload. Field numbers are fixed and
// never reused, so readers skip fields they do not know. State and input
// values of any comparable type built from booleans, numbers, strings,
// arrays and structs are encoded by reflection: a struct's exported fields
// are numbered by position starting at 1.
//
// Frames carry one message over a byte stream: a flag byte, a big-endian
// uint32 length and the payload.
package wire
