//go:build !onnx

package main

import (
	"errors"

	"github.com/nabiya/diarymem/config"
	"github.com/nabiya/diarymem/memory"
)

func newONNXEmbedder(config.ONNXConfig) (memory.Embedder, func(), error) {
	return nil, nil, errors.New("onnx embedder: diaryd was built without the onnx tag")
}
