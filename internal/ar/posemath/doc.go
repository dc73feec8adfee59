// Package posemath holds the matrix and pose utilities used by the frame
// pipeline: view and projection construction, model-view-projection
// composition, and inversion.
//
// Matrices are row-major [16]float64 (m[row*4+col]), the same layout the
// rest of the repository uses for rigid transforms. Use ColumnMajor32 when
// handing a matrix to a shader uniform.
//
// Every function in this package is pure. Nothing here allocates state that
// outlives a call, so the functions are safe to use from any goroutine.
package posemath
