package simtracker

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/banshee-data/arpositioning/internal/ar/tracking"
)

// DatasetVersion is written into every dataset header.
const DatasetVersion = "1.0"

var datasetMagic = []byte("ARDS")

// DatasetHeader describes a recorded dataset.
type DatasetHeader struct {
	Version   string        `json:"version"`
	CreatedNs int64         `json:"created_ns"`
	Tracks    []TrackHeader `json:"tracks"`
}

// TrackHeader names an auxiliary data track in the dataset.
type TrackHeader struct {
	ID       uuid.UUID `json:"id"`
	MimeType string    `json:"mime_type"`
}

// TrackSample is one payload written to an auxiliary track.
type TrackSample struct {
	TimestampNs int64     `json:"ts"`
	Track       uuid.UUID `json:"track"`
	Payload     []byte    `json:"payload"`
}

type datasetRecord struct {
	Frame *tracking.FrameSnapshot `json:"frame,omitempty"`
	Track *TrackSample            `json:"track,omitempty"`
}

// DatasetWriter streams frames and track samples to a dataset file. Each
// record is a little-endian uint32 length followed by a JSON body.
type DatasetWriter struct {
	w       io.WriteCloser
	frames  uint64
	samples uint64
	closed  bool
}

// NewDatasetWriter writes the magic and header to w.
func NewDatasetWriter(w io.WriteCloser, header DatasetHeader) (*DatasetWriter, error) {
	if header.Version == "" {
		header.Version = DatasetVersion
	}
	data, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := w.Write(datasetMagic); err != nil {
		return nil, fmt.Errorf("failed to write magic: %w", err)
	}
	if err := writeChunk(w, data); err != nil {
		return nil, err
	}
	return &DatasetWriter{w: w}, nil
}

func writeChunk(w io.Writer, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}
	return nil
}

func (d *DatasetWriter) write(rec datasetRecord) error {
	if d.closed {
		return errors.New("dataset writer is closed")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}
	return writeChunk(d.w, data)
}

// WriteFrame appends a frame. Plane trackables are not stored; they are
// reattached from the scene on playback.
func (d *DatasetWriter) WriteFrame(snap *tracking.FrameSnapshot) error {
	frame := *snap
	frame.Planes = nil
	if err := d.write(datasetRecord{Frame: &frame}); err != nil {
		return err
	}
	d.frames++
	return nil
}

// WriteTrackData appends a sample to an auxiliary track.
func (d *DatasetWriter) WriteTrackData(timestampNs int64, track uuid.UUID, payload []byte) error {
	s := TrackSample{TimestampNs: timestampNs, Track: track, Payload: payload}
	if err := d.write(datasetRecord{Track: &s}); err != nil {
		return err
	}
	d.samples++
	return nil
}

// Frames returns the number of frames written.
func (d *DatasetWriter) Frames() uint64 { return d.frames }

// Samples returns the number of track samples written.
func (d *DatasetWriter) Samples() uint64 { return d.samples }

// Close closes the underlying file. It is safe to call more than once.
func (d *DatasetWriter) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.w.Close()
}

// Dataset is a fully loaded recording.
type Dataset struct {
	Header  DatasetHeader
	Frames  []tracking.FrameSnapshot
	Samples []TrackSample
}

// ReadDataset parses a dataset written by DatasetWriter.
func ReadDataset(r io.Reader) (*Dataset, error) {
	magic := make([]byte, len(datasetMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(magic, datasetMagic) {
		return nil, fmt.Errorf("not a dataset: bad magic %q", magic)
	}

	headerData, err := readChunk(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	ds := &Dataset{}
	if err := json.Unmarshal(headerData, &ds.Header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	for {
		data, err := readChunk(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(ds.Frames)+len(ds.Samples), err)
		}
		var rec datasetRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to deserialize record: %w", err)
		}
		switch {
		case rec.Frame != nil:
			ds.Frames = append(ds.Frames, *rec.Frame)
		case rec.Track != nil:
			ds.Samples = append(ds.Samples, *rec.Track)
		}
	}
	return ds, nil
}

// readChunk returns io.EOF only at a clean record boundary.
func readChunk(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("invalid record length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("invalid record data: %w", io.ErrUnexpectedEOF)
	}
	return data, nil
}
