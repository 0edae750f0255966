// Package memory manages views over host buffers and the foreign module's
// linear memory.
//
// A View is a (buffer, offset, length) window. The Manager hands out views
// so that the same range always maps to the same *View, which lets objects
// cache themselves on the view they wrap. Views are held weakly: once nothing
// references a view its cache entry is dropped.
//
// The Registry records which foreign address ranges are backed by which
// views during a call, including shadow copies of host memory.
package memory
