package posemath

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMultiply_Identity(t *testing.T) {
	m := Translate(1, 2, 3).Matrix()
	if got := Multiply(Identity(), m); got != m {
		t.Errorf("I*m = %v, want %v", got, m)
	}
	if got := Multiply(m, Identity()); got != m {
		t.Errorf("m*I = %v, want %v", got, m)
	}
}

func TestMultiply_ComposesTranslations(t *testing.T) {
	got := Multiply(Translate(1, 0, 0).Matrix(), Translate(0, 2, 0).Matrix())
	want := Translate(1, 2, 0).Matrix()
	if !ApproxEqual(got, want, eps) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestQuaternionRotate_MatchesMatrix(t *testing.T) {
	q := AxisAngle([3]float64{0, 1, 0}, math.Pi/2)
	v := q.Rotate([3]float64{1, 0, 0})
	want := [3]float64{0, 0, -1}
	opt := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(want, v, opt); diff != "" {
		t.Errorf("Rotate mismatch (-want +got):\n%s", diff)
	}

	p := Pose{Translation: [3]float64{0.5, 0, 0}, Rotation: q}
	mv := MulVec4(p.Matrix(), [4]float64{1, 0, 0, 1})
	tp := p.TransformPoint([3]float64{1, 0, 0})
	if diff := cmp.Diff([]float64{tp[0], tp[1], tp[2], 1}, mv[:], opt); diff != "" {
		t.Errorf("Matrix and TransformPoint disagree (-point +matrix):\n%s", diff)
	}
}

func TestMulVec4_DirectionIgnoresTranslation(t *testing.T) {
	m := Translate(5, 6, 7).Matrix()
	got := MulVec4(m, [4]float64{0, 0, -1, 0})
	if got != [4]float64{0, 0, -1, 0} {
		t.Errorf("direction changed by translation: %v", got)
	}
}

func TestInvert_RigidTransform(t *testing.T) {
	p := NewPose([3]float64{1, -2, 3}, AxisAngle([3]float64{1, 1, 0}, 0.7))
	inv, err := Invert(p.Matrix())
	if err != nil {
		t.Fatalf("Invert: %v", err)
	}
	if !ApproxEqual(inv, p.Inverse().Matrix(), 1e-9) {
		t.Errorf("Invert(m) = %v, want %v", inv, p.Inverse().Matrix())
	}
	if !ApproxEqual(Multiply(inv, p.Matrix()), Identity(), 1e-9) {
		t.Error("inv*m is not identity")
	}
}

func TestInvert_Singular(t *testing.T) {
	_, err := Invert(Mat4{})
	if !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestInvert_Deterministic(t *testing.T) {
	m := NewPose([3]float64{0.1, 0.2, 0.3}, AxisAngle([3]float64{0, 0, 1}, 1.1)).Matrix()
	a, err := Invert(m)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Invert(m)
	if a != b {
		t.Error("Invert is not deterministic")
	}
}

func TestView_IsInverseOfCameraPose(t *testing.T) {
	cam := NewPose([3]float64{0, 1.5, 2}, AxisAngle([3]float64{1, 0, 0}, -0.3))
	got := Multiply(View(cam), cam.Matrix())
	if !ApproxEqual(got, Identity(), 1e-9) {
		t.Errorf("view*pose = %v, want identity", got)
	}
}

func TestProjection_NearFarMapToClipRange(t *testing.T) {
	const near, far = 0.1, 80.0
	proj := Projection(Intrinsics{FovY: math.Pi / 3, Aspect: 9.0 / 16.0}, near, far)

	for _, tc := range []struct {
		z    float64
		ndcZ float64
	}{
		{-near, -1},
		{-far, 1},
	} {
		clip := MulVec4(proj, [4]float64{0, 0, tc.z, 1})
		if got := clip[2] / clip[3]; math.Abs(got-tc.ndcZ) > 1e-6 {
			t.Errorf("z=%v: ndc z = %v, want %v", tc.z, got, tc.ndcZ)
		}
	}
}

func TestModelViewProjection(t *testing.T) {
	proj := Projection(Intrinsics{FovY: 1, Aspect: 1}, 0.1, 80)
	view := View(Translate(0, 0, 3))
	model := Translate(1, 0, 0).Matrix()

	mvp, mv := ModelViewProjection(proj, view, model)
	if !ApproxEqual(mv, Multiply(view, model), eps) {
		t.Error("modelView mismatch")
	}
	if !ApproxEqual(mvp, Multiply(proj, Multiply(view, model)), eps) {
		t.Error("mvp mismatch")
	}
}

func TestDistanceToPlane(t *testing.T) {
	plane := IdentityPose
	tests := []struct {
		name   string
		camera Pose
		want   float64
	}{
		{"above", Translate(0, 1, 0), 1},
		{"below", Translate(3, -2, 1), -2},
		{"on plane", Translate(4, 0, -4), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DistanceToPlane(plane, tt.camera); !approx(got, tt.want) {
				t.Errorf("DistanceToPlane = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceToPlane_TiltedPlane(t *testing.T) {
	// A wall facing +Z: rotate the plane's +Y normal onto +Z.
	wall := Pose{Translation: [3]float64{0, 0, -2}, Rotation: AxisAngle([3]float64{1, 0, 0}, math.Pi/2)}
	if got := DistanceToPlane(wall, IdentityPose); !approx(got, 2) {
		t.Errorf("camera in front of wall: got %v, want 2", got)
	}
	if got := DistanceToPlane(wall, Translate(0, 0, -3)); !approx(got, -1) {
		t.Errorf("camera behind wall: got %v, want -1", got)
	}
}

func TestColumnMajor32(t *testing.T) {
	m := Translate(1, 2, 3).Matrix().ColumnMajor32()
	if m[12] != 1 || m[13] != 2 || m[14] != 3 || m[15] != 1 {
		t.Errorf("translation not in last column: %v", m)
	}
	if Transpose(Transpose(Translate(1, 2, 3).Matrix())) != Translate(1, 2, 3).Matrix() {
		t.Error("transpose is not an involution")
	}
}
