package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocab = `{"model":{"vocab":{
	"[UNK]":100,"[CLS]":101,"[SEP]":102,
	"family":2155,"lunch":6265,"play":2377,"##ing":2075,"!":999
}}}`

func writeTokenizer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte(testVocab), 0o644))
	return path
}

func TestTokenizer_Encode(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t))
	require.NoError(t, err)

	ids := tok.Encode("Family lunch, playing!", 128)
	// "," is not in the vocabulary and maps to [UNK].
	assert.Equal(t, []int64{101, 2155, 6265, 100, 2377, 2075, 999, 102}, ids)
}

func TestTokenizer_EncodeTruncates(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t))
	require.NoError(t, err)

	ids := tok.Encode("family family family family", 4)
	assert.Equal(t, []int64{101, 2155, 2155, 102}, ids)
}

func TestTokenizer_MultibyteUnknown(t *testing.T) {
	tok, err := LoadTokenizer(writeTokenizer(t))
	require.NoError(t, err)

	assert.Equal(t, []int64{101, 100, 102}, tok.Encode("가족", 16))
}

func TestLoadTokenizer_Errors(t *testing.T) {
	_, err := LoadTokenizer(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model":{"vocab":{}}}`), 0o644))
	_, err = LoadTokenizer(path)
	assert.Error(t, err)
}
