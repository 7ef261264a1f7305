package metadata

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	/** @brief Compiled SPIR-V shader module. */
	ResourceTypeShader
	/** @brief Sphere scene description. */
	ResourceTypeScene
	/** @brief Any decodable image, loaded as RGBA8. */
	ResourceTypeImage
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeScene:
		return "scene"
	case ResourceTypeImage:
		return "image"
	default:
		return "none"
	}
}

type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}

type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}

type ImageResourceData struct {
	ChannelCount uint8
	Width        uint32
	Height       uint32
	Pixels       []uint8
}
