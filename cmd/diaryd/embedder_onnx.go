//go:build onnx

package main

import (
	"github.com/nabiya/diarymem/config"
	"github.com/nabiya/diarymem/memory"
	"github.com/nabiya/diarymem/memory/embedder/onnx"
)

func newONNXEmbedder(c config.ONNXConfig) (memory.Embedder, func(), error) {
	emb, err := onnx.New(onnx.Config{
		LibraryPath:   c.LibraryPath,
		ModelPath:     c.ModelPath,
		TokenizerPath: c.TokenizerPath,
		Dimensions:    c.Dimensions,
	})
	if err != nil {
		return nil, nil, err
	}
	return emb, func() { _ = emb.Close() }, nil
}
