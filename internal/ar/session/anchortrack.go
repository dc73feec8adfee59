package session

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// AnchorTrackMimeType is the MIME type of the anchor data track.
const AnchorTrackMimeType = "application/recording-playback-anchor"

// AnchorTrackID identifies the auxiliary data track that carries anchor
// events in a recording.
var AnchorTrackID = uuid.MustParse("53069eb5-21ef-4946-b71c-6ac4979216a6")

// AnchorTrack returns the track to attach to every recording.
func AnchorTrack() tracking.Track {
	return tracking.Track{ID: AnchorTrackID, MimeType: AnchorTrackMimeType}
}

// AnchorEvent is one anchor creation as written to the anchor track.
type AnchorEvent struct {
	AnchorID    uuid.UUID
	Trackable   string
	Pose        posemath.Pose
	TimestampNs int64
}

// EncodeAnchorEvent serialises e as a protobuf Struct.
func EncodeAnchorEvent(e AnchorEvent) ([]byte, error) {
	t, q := e.Pose.Translation, e.Pose.Rotation
	s, err := structpb.NewStruct(map[string]any{
		"anchor_id":    e.AnchorID.String(),
		"trackable":    e.Trackable,
		"timestamp_ns": e.TimestampNs,
		"translation":  []any{t[0], t[1], t[2]},
		"rotation":     []any{q.X, q.Y, q.Z, q.W},
	})
	if err != nil {
		return nil, fmt.Errorf("build anchor event: %w", err)
	}
	return proto.Marshal(s)
}

// DecodeAnchorEvent parses a payload written by EncodeAnchorEvent.
func DecodeAnchorEvent(payload []byte) (AnchorEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(payload, &s); err != nil {
		return AnchorEvent{}, fmt.Errorf("unmarshal anchor event: %w", err)
	}
	f := s.GetFields()
	id, err := uuid.Parse(f["anchor_id"].GetStringValue())
	if err != nil {
		return AnchorEvent{}, fmt.Errorf("anchor event id: %w", err)
	}
	tv := f["translation"].GetListValue().GetValues()
	rv := f["rotation"].GetListValue().GetValues()
	if len(tv) != 3 || len(rv) != 4 {
		return AnchorEvent{}, fmt.Errorf("anchor event pose: got %d translation and %d rotation values", len(tv), len(rv))
	}
	return AnchorEvent{
		AnchorID:    id,
		Trackable:   f["trackable"].GetStringValue(),
		TimestampNs: int64(f["timestamp_ns"].GetNumberValue()),
		Pose: posemath.Pose{
			Translation: [3]float64{tv[0].GetNumberValue(), tv[1].GetNumberValue(), tv[2].GetNumberValue()},
			Rotation: posemath.Quaternion{
				X: rv[0].GetNumberValue(),
				Y: rv[1].GetNumberValue(),
				Z: rv[2].GetNumberValue(),
				W: rv[3].GetNumberValue(),
			},
		},
	}, nil
}
