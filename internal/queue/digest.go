package queue

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest identifies a job by what it would run: the document text, the swap
// selection and the parameter overrides. encoding/json sorts map keys, so
// equal inputs always hash the same.
func Digest(document []byte, swaps map[string]string, params map[string]any) (string, error) {
	extra, err := json.Marshal(struct {
		Swaps  map[string]string `json:"swaps"`
		Params map[string]any    `json:"params"`
	}{swaps, params})
	if err != nil {
		return "", fmt.Errorf("encode job inputs: %w", err)
	}

	h := blake3.New()
	_, _ = h.Write(document)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(extra)
	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}
