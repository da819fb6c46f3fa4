package decode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Mesh is the decoded geometry of one sub-mesh, ready to hand to the
// recorder's mesh primitive.
type Mesh struct {
	Vertices  []float32 // flat x,y,z triples
	Indices   []uint32  // flat triangle index triples
	Normals   []float32 // optional, flat x,y,z triples
	Colors    []uint32  // optional, one packed RGBA per vertex
	TexCoords []float32 // optional, flat u,v pairs
}

// MeshDecoder decodes one sub-mesh's encoded geometry payload. The default
// implementation, DefaultMeshDecoder, does not speak the real Draco
// bitstream (see DESIGN.md); callers needing bit-exact Draco decoding
// inject their own implementation here.
type MeshDecoder interface {
	Decode(data []byte) (Mesh, error)
}

// DefaultMeshDecoder decodes the module's own documented sub-mesh layout: a
// small header of element counts followed by flat float32/uint32 arrays,
// all little-endian. It exists so the core is exercisable end-to-end
// without a real Draco dependency; it is not wire-compatible with actual
// Draco-encoded payloads from an XR client.
type DefaultMeshDecoder struct{}

const meshHeaderSize = 16 // 4 uint32 counts: vertices, indices, normals flag, texcoords flag

// Decode parses data per DefaultMeshDecoder's documented layout:
//
//	uint32 vertexCount
//	uint32 indexCount
//	uint32 hasNormals (0 or 1)
//	uint32 hasTexCoords (0 or 1)
//	vertexCount*3 float32 vertices
//	indexCount uint32 indices
//	[hasNormals] vertexCount*3 float32 normals
//	[hasTexCoords] vertexCount*2 float32 texcoords
func (DefaultMeshDecoder) Decode(data []byte) (Mesh, error) {
	if len(data) < meshHeaderSize {
		return Mesh{}, fmt.Errorf("mesh payload too short: %d bytes", len(data))
	}
	vertexCount := binary.LittleEndian.Uint32(data[0:4])
	indexCount := binary.LittleEndian.Uint32(data[4:8])
	hasNormals := binary.LittleEndian.Uint32(data[8:12]) != 0
	hasTexCoords := binary.LittleEndian.Uint32(data[12:16]) != 0

	offset := meshHeaderSize
	vertices, offset, err := readFloat32s(data, offset, int(vertexCount)*3)
	if err != nil {
		return Mesh{}, err
	}
	indices, offset, err := readUint32s(data, offset, int(indexCount))
	if err != nil {
		return Mesh{}, err
	}

	mesh := Mesh{Vertices: vertices, Indices: indices}

	if hasNormals {
		normals, next, err := readFloat32s(data, offset, int(vertexCount)*3)
		if err != nil {
			return Mesh{}, err
		}
		mesh.Normals = normals
		offset = next
	}
	if hasTexCoords {
		texCoords, next, err := readFloat32s(data, offset, int(vertexCount)*2)
		if err != nil {
			return Mesh{}, err
		}
		mesh.TexCoords = texCoords
		offset = next
	}
	_ = offset

	return mesh, nil
}

func readFloat32s(data []byte, offset, count int) ([]float32, int, error) {
	end := offset + count*4
	if end > len(data) {
		return nil, offset, fmt.Errorf("mesh payload truncated reading %d float32s at offset %d", count, offset)
	}
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint32(data[offset+i*4 : offset+i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out, end, nil
}

func readUint32s(data []byte, offset, count int) ([]uint32, int, error) {
	end := offset + count*4
	if end > len(data) {
		return nil, offset, fmt.Errorf("mesh payload truncated reading %d uint32s at offset %d", count, offset)
	}
	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		out[i] = binary.LittleEndian.Uint32(data[offset+i*4 : offset+i*4+4])
	}
	return out, end, nil
}
