// Package render is the boundary between the frame pipeline and the
// external rendering backend.
//
// The pipeline never rasterizes anything. Each frame it produces a DrawList:
// an ordered sequence of typed draw commands, each naming a mesh, a shader
// and the uniform values for that draw. The backend executes the list in
// order. Recorder is an in-memory backend that keeps the submitted lists for
// inspection.
//
// Camera texture names are bound once per texture-identity epoch. The epoch
// is tracked by TextureNameLatch: it starts pending, is re-armed every time
// the tracker session is recreated or switches between live and playback,
// and is read-and-cleared by the frame pipeline before it binds the names.
package render
