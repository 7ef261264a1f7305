package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/** @brief First word of every SPIR-V module. */
const SpirvMagic uint32 = 0x07230203

// BinaryLoader reads compiled SPIR-V and returns it as a []uint32 word stream.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string, params interface{}) (*metadata.Resource, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("%w: failed to read `%s`: %v", core.ErrShaderLoad, path, err)
		core.LogError(err.Error())
		return nil, err
	}

	code, err := BytesToBytecode(buf)
	if err != nil {
		err = fmt.Errorf("`%s`: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if p, ok := params.(map[string]string); ok && p["name"] != "" {
		name = p["name"]
	}

	return &metadata.Resource{
		Name:     name,
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     code,
	}, nil
}

func (bl *BinaryLoader) Unload(res *metadata.Resource) error {
	if res != nil {
		res.Data = nil
		res.DataSize = 0
	}
	return nil
}

// BytesToBytecode converts a little endian SPIR-V blob into words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: byte length %d is not a positive multiple of 4", core.ErrShaderLoad, len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	if byteCode[0] != SpirvMagic {
		return nil, fmt.Errorf("%w: bad magic number 0x%08x", core.ErrShaderLoad, byteCode[0])
	}
	return byteCode, nil
}
