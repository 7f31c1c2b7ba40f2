// Package artifact packages a recorded session into the double-encrypted,
// integrity-hashed zip container shared by the recorder and the viewer, and
// reads it back.
package artifact

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/azmarif/examguard/internal/classify"
	"github.com/azmarif/examguard/internal/counter"
	"github.com/azmarif/examguard/internal/cryptoenv"
	"github.com/azmarif/examguard/internal/session"
	"github.com/google/uuid"
)

const (
	memberEvents         = "events.json.enc"
	memberSummary        = "summary.json.enc"
	memberMetadata       = "metadata.json.enc"
	memberTerminalOutput = "terminal_output.log.enc"
	memberStateCopy      = "state_copy.json.enc"
	memberIntegrity      = "integrity.sha256"
)

// memberOrder is both the write order and the expected read order: the
// hash member binds the concatenation of these five ciphertexts, in
// exactly this sequence.
var memberOrder = []string{
	memberEvents,
	memberSummary,
	memberMetadata,
	memberTerminalOutput,
	memberStateCopy,
}

// Decrypted is the fully-opened, parsed view of an artifact.
type Decrypted struct {
	Events          []classify.KeystrokeEvent
	Summary         session.Summary
	Metadata        session.Metadata
	TerminalOutput  []byte
	Counter         counter.SessionCounter
	IntegrityPassed bool
}

// Path returns the well-known artifact path for a session.
func Path(stateDir, username string, startUnix int64) string {
	return filepath.Join(stateDir, fmt.Sprintf("exam-result-%s-%d.zip", username, startUnix))
}

// Pack serialises result's five payloads, encrypts each independently
// under the instructor key, computes the integrity hash over the
// concatenated ciphertexts, assembles a deflate-compressed zip, encrypts
// the whole archive again under the same key, and writes it to stateDir
// with mode 0o600. It returns the path written.
func Pack(stateDir string, result *session.Result, password string) (string, error) {
	aead, err := cryptoenv.NewAEAD(cryptoenv.DeriveInstructorKey(password))
	if err != nil {
		return "", fmt.Errorf("artifact: derive instructor key: %w", err)
	}

	plaintexts, err := marshalPayloads(result)
	if err != nil {
		return "", err
	}

	ciphertexts := make(map[string][]byte, len(memberOrder))
	var concatenated []byte
	for _, name := range memberOrder {
		c, err := cryptoenv.Seal(aead, plaintexts[name])
		if err != nil {
			return "", fmt.Errorf("artifact: encrypt %s: %w", name, err)
		}
		ciphertexts[name] = c
		concatenated = append(concatenated, c...)
	}
	sum := sha256.Sum256(concatenated)
	integrityHex := hex.EncodeToString(sum[:])

	var archiveBuf bytes.Buffer
	zw := zip.NewWriter(&archiveBuf)
	for _, name := range memberOrder {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return "", fmt.Errorf("artifact: create zip member %s: %w", name, err)
		}
		if _, err := w.Write(ciphertexts[name]); err != nil {
			return "", fmt.Errorf("artifact: write zip member %s: %w", name, err)
		}
	}
	integrityW, err := zw.CreateHeader(&zip.FileHeader{Name: memberIntegrity, Method: zip.Deflate})
	if err != nil {
		return "", fmt.Errorf("artifact: create zip member %s: %w", memberIntegrity, err)
	}
	if _, err := integrityW.Write([]byte(integrityHex)); err != nil {
		return "", fmt.Errorf("artifact: write zip member %s: %w", memberIntegrity, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("artifact: close zip writer: %w", err)
	}

	envelope, err := cryptoenv.Seal(aead, archiveBuf.Bytes())
	if err != nil {
		return "", fmt.Errorf("artifact: encrypt archive: %w", err)
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("artifact: create state dir: %w", err)
	}
	path := Path(stateDir, result.Metadata.Username, result.Metadata.StartTime)

	// Written under a uuid-suffixed temp name first and renamed into place,
	// so a crash mid-write never leaves a half-written artifact at the final
	// path a viewer might try to open.
	tmpPath := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmpPath, envelope, 0o600); err != nil {
		return "", fmt.Errorf("artifact: write artifact file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifact: finalize artifact file: %w", err)
	}
	return path, nil
}

func marshalPayloads(result *session.Result) (map[string][]byte, error) {
	events, err := json.Marshal(result.Events)
	if err != nil {
		return nil, fmt.Errorf("artifact: serialize events: %w", err)
	}
	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return nil, fmt.Errorf("artifact: serialize summary: %w", err)
	}
	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return nil, fmt.Errorf("artifact: serialize metadata: %w", err)
	}
	stateCopy, err := json.Marshal(result.Counter)
	if err != nil {
		return nil, fmt.Errorf("artifact: serialize state copy: %w", err)
	}
	return map[string][]byte{
		memberEvents:         events,
		memberSummary:        summary,
		memberMetadata:       metadata,
		memberTerminalOutput: result.TerminalOutput,
		memberStateCopy:      stateCopy,
	}, nil
}

// Open decrypts the outer envelope, opens the inner archive, decrypts and
// parses each of the five members, and recomputes the integrity hash over
// the inner ciphertexts in the zip's own storage order (not a re-sort by
// name) to match the producer's write order exactly. A hash mismatch sets
// IntegrityPassed=false but does not prevent the decrypted data from being
// returned. A missing member is always a fatal error.
func Open(path, password string) (*Decrypted, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: read file: %w", err)
	}

	aead, err := cryptoenv.NewAEAD(cryptoenv.DeriveInstructorKey(password))
	if err != nil {
		return nil, fmt.Errorf("artifact: derive instructor key: %w", err)
	}

	archiveBytes, err := cryptoenv.Open(aead, raw)
	if err != nil {
		return nil, fmt.Errorf("artifact: decrypt archive envelope: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		return nil, fmt.Errorf("artifact: open zip: %w", err)
	}

	var concatenated []byte
	var integrityHex string
	plaintexts := make(map[string][]byte, len(memberOrder))
	seen := make(map[string]bool, len(memberOrder))

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("artifact: open zip member %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("artifact: read zip member %s: %w", f.Name, err)
		}

		if f.Name == memberIntegrity {
			integrityHex = strings.TrimSpace(string(data))
			continue
		}

		concatenated = append(concatenated, data...)
		plaintext, err := cryptoenv.Open(aead, data)
		if err != nil {
			return nil, fmt.Errorf("artifact: decrypt zip member %s: %w", f.Name, err)
		}
		plaintexts[f.Name] = plaintext
		seen[f.Name] = true
	}

	for _, name := range memberOrder {
		if !seen[name] {
			return nil, fmt.Errorf("artifact: archive missing member %s", name)
		}
	}

	sum := sha256.Sum256(concatenated)
	integrityPassed := hex.EncodeToString(sum[:]) == integrityHex

	var events []classify.KeystrokeEvent
	if err := json.Unmarshal(plaintexts[memberEvents], &events); err != nil {
		return nil, fmt.Errorf("artifact: parse events: %w", err)
	}
	var summary session.Summary
	if err := json.Unmarshal(plaintexts[memberSummary], &summary); err != nil {
		return nil, fmt.Errorf("artifact: parse summary: %w", err)
	}
	var metadata session.Metadata
	if err := json.Unmarshal(plaintexts[memberMetadata], &metadata); err != nil {
		return nil, fmt.Errorf("artifact: parse metadata: %w", err)
	}
	var sc counter.SessionCounter
	if err := json.Unmarshal(plaintexts[memberStateCopy], &sc); err != nil {
		return nil, fmt.Errorf("artifact: parse state copy: %w", err)
	}

	return &Decrypted{
		Events:          events,
		Summary:         summary,
		Metadata:        metadata,
		TerminalOutput:  plaintexts[memberTerminalOutput],
		Counter:         sc,
		IntegrityPassed: integrityPassed,
	}, nil
}
