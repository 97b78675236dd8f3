/*
proofstore.go - Filesystem payment-proof storage

PURPOSE:
  Persists uploaded payment-proof blobs to a local directory and returns
  the opaque reference the engine stores on the transaction. The blob is
  never interpreted; organizers inspect it out of band.

  In production this would be object storage (S3, GCS) behind the same
  ticketing.ProofStore interface.
*/
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/gatehall/ticketing-engine/ticketing"
)

// FileProofStore writes proofs under a base directory, one file per upload.
type FileProofStore struct {
	Dir string
}

// NewFileProofStore creates the directory if needed.
func NewFileProofStore(dir string) (*FileProofStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}
	return &FileProofStore{Dir: dir}, nil
}

// Save writes the blob and returns its reference. The reference embeds a
// random component so a re-upload never overwrites an earlier proof.
func (fs *FileProofStore) Save(_ context.Context, txID ticketing.TransactionID, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("empty proof upload")
	}
	name := fmt.Sprintf("%s-%s.bin", txID, uuid.NewString())
	if err := os.WriteFile(filepath.Join(fs.Dir, name), blob, 0o644); err != nil {
		return "", fmt.Errorf("failed to write proof: %w", err)
	}
	return name, nil
}
