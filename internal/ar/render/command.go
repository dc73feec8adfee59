package render

import (
	"fmt"

	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// Mesh identifies a mesh owned by the backend.
type Mesh uint8

const (
	MeshBackground    Mesh = iota // full-screen camera image quad
	MeshPointCloud                // feature points
	MeshPlanes                    // detected plane polygons
	MeshVirtualObject             // the anchor marker model
	MeshComposite                 // background + occluded virtual layer
)

var meshNames = [...]string{
	MeshBackground:    "background",
	MeshPointCloud:    "point_cloud",
	MeshPlanes:        "planes",
	MeshVirtualObject: "virtual_object",
	MeshComposite:     "composite",
}

func (m Mesh) String() string {
	if int(m) < len(meshNames) {
		return meshNames[m]
	}
	return fmt.Sprintf("Mesh(%d)", m)
}

// Target is the surface a draw command renders into.
type Target uint8

const (
	// TargetScreen is the default framebuffer.
	TargetScreen Target = iota
	// TargetVirtualScene is the offscreen layer composited over the
	// background with depth occlusion.
	TargetVirtualScene
)

// Shader names understood by the backend.
const (
	ShaderBackground    = "background_show_camera"
	ShaderPointCloud    = "point_cloud"
	ShaderPlane         = "plane"
	ShaderEnvironmental = "environmental_hdr"
	ShaderComposite     = "background_composite"
)

// Albedo texture variants for the anchor marker.
const (
	TextureAlbedo                 = "pawn_albedo"
	TextureAlbedoInstantPlacement = "pawn_albedo_instant_placement"
)

// Uniform names. Matrix values are column-major [16]float32.
const (
	UniformModelView            = "u_ModelView"
	UniformModelViewProjection  = "u_ModelViewProjection"
	UniformViewInverse          = "u_ViewInverse"
	UniformViewLightDirection   = "u_ViewLightDirection"
	UniformLightIntensity       = "u_LightIntensity"
	UniformSphericalHarmonics   = "u_SphericalHarmonicsCoefficients"
	UniformLightEstimateIsValid = "u_LightEstimateIsValid"
	UniformCubeMap              = "u_Cubemap"
	UniformAlbedoTexture        = "u_AlbedoTexture"
	UniformColor                = "u_Color"
	UniformPointSize            = "u_PointSize"
	UniformPlaneCount           = "u_PlaneCount"
	UniformUseOcclusion         = "u_UseOcclusion"
)

// ParamPlanes carries the []*tracking.Trackable drawn by MeshPlanes. It is
// not a uniform; the backend builds the plane meshes from it.
const ParamPlanes = "planes"

// ShaderParams holds uniform values for one draw.
type ShaderParams map[string]any

// Clone returns a shallow copy of p.
func (p ShaderParams) Clone() ShaderParams {
	out := make(ShaderParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// DrawCommand is one draw in a frame's list.
type DrawCommand struct {
	Mesh   Mesh
	Shader string
	Params ShaderParams
	Target Target
}

// DrawList is everything the backend needs for one frame, in order.
type DrawList struct {
	FrameTimestamp int64

	// KeepScreenOn is true while the camera is tracking.
	KeepScreenOn bool
	// Message is the status text to show, empty for none.
	Message string

	// PointCloud is set only when the cloud changed since the last upload.
	PointCloud *tracking.PointCloud
	// Depth is set when a new depth image was acquired this frame.
	Depth *tracking.DepthImage

	Commands []DrawCommand
}

// Append adds a command to the end of the list.
func (l *DrawList) Append(cmd DrawCommand) {
	l.Commands = append(l.Commands, cmd)
}

// Meshes returns the mesh of every command, in order.
func (l *DrawList) Meshes() []Mesh {
	out := make([]Mesh, len(l.Commands))
	for i, c := range l.Commands {
		out[i] = c.Mesh
	}
	return out
}

// Renderer is the external rendering backend.
type Renderer interface {
	// Prepare loads meshes, textures and shaders. A failure is fatal to
	// initialization.
	Prepare() error
	// CameraTextureNames returns the texture names the tracker should
	// write camera images into.
	CameraTextureNames() []uint32
	// Submit executes a frame's draw list.
	Submit(list *DrawList) error
}
