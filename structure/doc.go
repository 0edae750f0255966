// Package structure turns the type descriptions a foreign module streams at
// load time into live structures, and gives their instances typed access to
// raw memory.
//
// Descriptions arrive through the Registry in protocol order:
//
//	BeginStructure -> AttachMember* -> AttachTemplate? -> AttachTemplateSlot* -> EndStructure
//
// EndStructure defines the structure's behavior through a table indexed by
// Kind. Members may reference structures that have been begun but not ended,
// which is how self-referential types are described. FinalizeAll runs the
// second pass once everything is known: capability flags, static members,
// enum items, error-set members and bound methods.
//
// An Object is a view plus lazily created child objects kept in slots.
// Wrapping the same view twice with the same structure yields the same
// Object. Values cross to Go as plain data through Object.Value, and back
// through Structure.New and Object.Assign.
//
// A Catalog recorded with WithRecorder can be encoded with msgpack and
// replayed into a fresh registry without running the module.
package structure
