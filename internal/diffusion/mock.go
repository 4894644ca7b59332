package diffusion

import "context"

// mockPNG is a valid 1x1 transparent PNG.
var mockPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x62, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// MockRenderer returns a fixed placeholder image when no diffusion backend
// is configured.
type MockRenderer struct{}

func NewMockRenderer() *MockRenderer { return &MockRenderer{} }

func (m *MockRenderer) Generate(ctx context.Context, _ string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	out := make([]byte, len(mockPNG))
	copy(out, mockPNG)
	return out, nil
}

func (m *MockRenderer) Edit(ctx context.Context, prompt string, _ []byte) ([]byte, error) {
	return m.Generate(ctx, prompt)
}
