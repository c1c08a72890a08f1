package layout

import "golang.org/x/sys/cpu"

// DetectSIMDAlignment returns the widest vector register size (in bytes)
// supported by the running CPU: 64 for AVX-512, 32 for AVX2, 16 otherwise.
func DetectSIMDAlignment() uint32 {
	switch {
	case cpu.X86.HasAVX512F:
		return 64
	case cpu.X86.HasAVX2:
		return 32
	default:
		return 16
	}
}
