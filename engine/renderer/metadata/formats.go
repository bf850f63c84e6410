package metadata

/** @brief Texel formats understood by the device boundary. */
type TextureFormat uint8

const (
	FormatUnknown TextureFormat = iota
	FormatR8Unorm
	FormatRG8Unorm
	FormatRGBA8Unorm
	FormatR16Float
	FormatRG16Float
	FormatRGBA16Float
	FormatR32Float
	FormatRG32Float
	FormatRGBA32Float
	FormatR11G11B10Float
	FormatD32Float
)

func (f TextureFormat) String() string {
	switch f {
	case FormatR8Unorm:
		return "R8_UNORM"
	case FormatRG8Unorm:
		return "RG8_UNORM"
	case FormatRGBA8Unorm:
		return "RGBA8_UNORM"
	case FormatR16Float:
		return "R16_FLOAT"
	case FormatRG16Float:
		return "RG16_FLOAT"
	case FormatRGBA16Float:
		return "RGBA16_FLOAT"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatRG32Float:
		return "RG32_FLOAT"
	case FormatRGBA32Float:
		return "RGBA32_FLOAT"
	case FormatR11G11B10Float:
		return "R11G11B10_FLOAT"
	case FormatD32Float:
		return "D32_FLOAT"
	}
	return "UNKNOWN"
}

// BytesPerTexel returns the storage size of one texel, 0 for unknown formats.
func (f TextureFormat) BytesPerTexel() uint32 {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRG8Unorm, FormatR16Float:
		return 2
	case FormatRGBA8Unorm, FormatRG16Float, FormatR32Float, FormatR11G11B10Float, FormatD32Float:
		return 4
	case FormatRGBA16Float, FormatRG32Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}
