package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/klauspost/compress/zstd"

	"voxelstream/internal/generation"
	"voxelstream/internal/mesh"
	"voxelstream/internal/terrain"
	"voxelstream/internal/world"
)

// Binary mesh frames are a fixed little-endian header followed by the
// vertex, triangle, uv and colour buffers, optionally zstd compressed.
//
//	magic      [4]byte "VXMF"
//	flags      uint8   bit 0: body is zstd compressed
//	variant    uint8
//	reserved   uint16
//	chunkX     int32
//	chunkZ     int32
//	generation uint64
//	origin     3 x float32
//	vertices   uint32  count
//	triangles  uint32  index count
//	bodyLen    uint32  bytes following the header
const (
	frameHeaderSize = 4 + 1 + 1 + 2 + 4 + 4 + 8 + 12 + 4 + 4 + 4

	flagCompressed = 1 << 0

	// maxMeshBody bounds the decoded body of one frame.
	maxMeshBody = 64 << 20

	vertexStride = (3 + 2 + 4) * 4
)

var frameMagic = [4]byte{'V', 'X', 'M', 'F'}

var errShortFrame = errors.New("mesh frame: truncated")

// MeshFrame is a decoded binary mesh hand-off.
type MeshFrame struct {
	Key        generation.Key
	Generation uint64
	Origin     mgl32.Vec3
	Mesh       mesh.MeshData
}

// Codec encodes mesh hand-offs. It is safe for concurrent use.
type Codec struct {
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func NewCodec(compress bool) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxMeshBody))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Codec{compress: compress, enc: enc, dec: dec}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

func (c *Codec) EncodeMesh(h world.Handoff) ([]byte, error) {
	if h.Mesh == nil {
		return nil, fmt.Errorf("chunk %v: nil mesh", h.Key)
	}
	if err := h.Mesh.Validate(); err != nil {
		return nil, fmt.Errorf("chunk %v: %w", h.Key, err)
	}
	body := encodeBody(h.Mesh)
	var flags uint8
	if c.compress {
		body = c.enc.EncodeAll(body, nil)
		flags |= flagCompressed
	}

	out := make([]byte, 0, frameHeaderSize+len(body))
	out = append(out, frameMagic[:]...)
	out = append(out, flags, uint8(h.Key.Variant), 0, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(h.Key.Coord.X)))
	out = binary.LittleEndian.AppendUint32(out, uint32(int32(h.Key.Coord.Z)))
	out = binary.LittleEndian.AppendUint64(out, h.Generation)
	for _, f := range h.Origin {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(h.Mesh.Vertices)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(h.Mesh.Triangles)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

func encodeBody(m *mesh.MeshData) []byte {
	size := len(m.Vertices)*vertexStride + len(m.Triangles)*4
	body := make([]byte, 0, size)
	for _, v := range m.Vertices {
		body = appendFloats(body, v[:])
	}
	for _, idx := range m.Triangles {
		body = binary.LittleEndian.AppendUint32(body, idx)
	}
	for _, uv := range m.UVs {
		body = appendFloats(body, uv[:])
	}
	for _, c := range m.Colors {
		body = appendFloats(body, c[:])
	}
	return body
}

func appendFloats(b []byte, fs []float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

func (c *Codec) DecodeMesh(data []byte) (MeshFrame, error) {
	var frame MeshFrame
	if len(data) < frameHeaderSize {
		return frame, errShortFrame
	}
	if [4]byte(data[0:4]) != frameMagic {
		return frame, errors.New("mesh frame: bad magic")
	}
	flags := data[4]
	frame.Key.Variant = terrain.Variant(data[5])
	le := binary.LittleEndian
	frame.Key.Coord.X = int(int32(le.Uint32(data[8:12])))
	frame.Key.Coord.Z = int(int32(le.Uint32(data[12:16])))
	frame.Generation = le.Uint64(data[16:24])
	for i := range frame.Origin {
		frame.Origin[i] = math.Float32frombits(le.Uint32(data[24+4*i:]))
	}
	vertices := int(le.Uint32(data[36:40]))
	triangles := int(le.Uint32(data[40:44]))
	bodyLen := int(le.Uint32(data[44:48]))
	body := data[frameHeaderSize:]
	if len(body) != bodyLen {
		return frame, errShortFrame
	}

	want := vertices*vertexStride + triangles*4
	if want > maxMeshBody {
		return frame, fmt.Errorf("mesh frame: %d byte body exceeds limit", want)
	}

	if flags&flagCompressed != 0 {
		var hdr zstd.Header
		if err := hdr.Decode(body); err != nil {
			return frame, fmt.Errorf("mesh frame: zstd header: %w", err)
		}
		if hdr.HasFCS && hdr.FrameContentSize != uint64(want) {
			return frame, fmt.Errorf("mesh frame: compressed body declares %d bytes, header needs %d", hdr.FrameContentSize, want)
		}
		raw, err := c.dec.DecodeAll(body, make([]byte, 0, want))
		if err != nil {
			return frame, fmt.Errorf("mesh frame: decompress: %w", err)
		}
		body = raw
	}
	if len(body) != want {
		return frame, errShortFrame
	}

	m := &frame.Mesh
	m.Vertices = make([]mgl32.Vec3, vertices)
	m.Triangles = make([]uint32, triangles)
	m.UVs = make([]mgl32.Vec2, vertices)
	m.Colors = make([]mgl32.Vec4, vertices)
	off := 0
	next := func() float32 {
		f := math.Float32frombits(le.Uint32(body[off:]))
		off += 4
		return f
	}
	for i := range m.Vertices {
		m.Vertices[i] = mgl32.Vec3{next(), next(), next()}
	}
	for i := range m.Triangles {
		m.Triangles[i] = le.Uint32(body[off:])
		off += 4
	}
	for i := range m.UVs {
		m.UVs[i] = mgl32.Vec2{next(), next()}
	}
	for i := range m.Colors {
		m.Colors[i] = mgl32.Vec4{next(), next(), next(), next()}
	}
	return frame, nil
}
