//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

var errRequiresCGO = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder stub when built without CGO (see onnx.go). It satisfies
// Embedder so call sites compile; every method fails like the constructor.
type ONNXEmbedder struct{}

var _ Embedder = (*ONNXEmbedder)(nil)

// NewONNXEmbedder fails when built without CGO.
func NewONNXEmbedder(_ string, _, _, _ int) (*ONNXEmbedder, error) {
	return nil, errRequiresCGO
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errRequiresCGO
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errRequiresCGO
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
