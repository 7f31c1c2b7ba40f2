package artifact

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/azmarif/examguard/internal/classify"
	"github.com/azmarif/examguard/internal/counter"
	"github.com/azmarif/examguard/internal/cryptoenv"
	"github.com/azmarif/examguard/internal/session"
)

func sampleResult() *session.Result {
	meta := session.NewMetadata("alice", "host-a", "deadbeef", 3, time.Unix(1000, 0))
	meta.Finalize(time.Unix(1042, 0))
	events := []classify.KeystrokeEvent{
		{Timestamp: 1000, KeyCode: 'l', KeyName: "l", RawBytes: []byte{'l'}},
		{Timestamp: 1001, KeyCode: 's', KeyName: "s", RawBytes: []byte{'s'}},
		{Timestamp: 1002, KeyCode: '\n', KeyName: "Enter", RawBytes: []byte{'\n'}},
	}
	commands := []classify.CommandEvent{{Timestamp: 1002, Command: "ls"}}
	return &session.Result{
		Metadata:       meta,
		Summary:        session.ComputeSummary(events, commands),
		Events:         events,
		Commands:       commands,
		TerminalOutput: []byte("total 0\n$ "),
		Counter:        &counter.SessionCounter{RunCounter: 3},
	}
}

func TestPackOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	result := sampleResult()

	path, err := Pack(dir, result, "correct horse battery staple")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	decrypted, err := Open(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !decrypted.IntegrityPassed {
		t.Fatal("expected integrity check to pass on an untampered artifact")
	}
	if len(decrypted.Events) != len(result.Events) {
		t.Fatalf("expected %d events, got %d", len(result.Events), len(decrypted.Events))
	}
	if decrypted.Metadata.Username != "alice" {
		t.Fatalf("unexpected metadata: %+v", decrypted.Metadata)
	}
	if string(decrypted.TerminalOutput) != "total 0\n$ " {
		t.Fatalf("unexpected terminal output: %q", decrypted.TerminalOutput)
	}
	if decrypted.Counter.RunCounter != 3 {
		t.Fatalf("expected run_counter=3, got %d", decrypted.Counter.RunCounter)
	}
}

func TestOpenWithWrongPasswordFails(t *testing.T) {
	dir := t.TempDir()
	path, err := Pack(dir, sampleResult(), "correct horse battery staple")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, err := Open(path, "wrong password"); err == nil {
		t.Fatal("expected open with wrong password to fail")
	}
}

func TestArtifactFileModeIs0600(t *testing.T) {
	dir := t.TempDir()
	path, err := Pack(dir, sampleResult(), "pw")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}
}

func TestTamperedCiphertextBreaksIntegrityOrDecrypt(t *testing.T) {
	dir := t.TempDir()
	path, err := Pack(dir, sampleResult(), "pw")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-1] ^= 0x01
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	if _, err := Open(path, "pw"); err == nil {
		t.Fatal("expected flipping a bit in the outer envelope to break decryption")
	}
}

// TestTamperedIntegrityMemberOnlyFailsCheckButStillOpens rebuilds the inner
// archive with every ciphertext member byte-for-byte untouched and only the
// plaintext integrity.sha256 member corrupted, re-encrypts it under the same
// key, and confirms Open still succeeds but reports IntegrityPassed=false —
// the partial-failure path Open's doc comment describes, as distinct from
// the whole-envelope corruption exercised above.
func TestTamperedIntegrityMemberOnlyFailsCheckButStillOpens(t *testing.T) {
	dir := t.TempDir()
	path, err := Pack(dir, sampleResult(), "pw")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	aead, err := cryptoenv.NewAEAD(cryptoenv.DeriveInstructorKey("pw"))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	archiveBytes, err := cryptoenv.Open(aead, raw)
	if err != nil {
		t.Fatalf("decrypt envelope: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archiveBytes), int64(len(archiveBytes)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}

	var rebuilt bytes.Buffer
	zw := zip.NewWriter(&rebuilt)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open member %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read member %s: %v", f.Name, err)
		}
		if f.Name == memberIntegrity {
			// Flip one hex character: still valid UTF-8, still the same
			// length, just no longer matching the recomputed hash.
			data[0] ^= 0x01
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate})
		if err != nil {
			t.Fatalf("create member %s: %v", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write member %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	envelope, err := cryptoenv.Seal(aead, rebuilt.Bytes())
	if err != nil {
		t.Fatalf("re-encrypt envelope: %v", err)
	}
	if err := os.WriteFile(path, envelope, 0o600); err != nil {
		t.Fatalf("rewrite artifact: %v", err)
	}

	decrypted, err := Open(path, "pw")
	if err != nil {
		t.Fatalf("expected open to succeed despite a corrupted integrity member, got: %v", err)
	}
	if decrypted.IntegrityPassed {
		t.Fatal("expected IntegrityPassed=false when only the integrity member was tampered with")
	}
	if len(decrypted.Events) != 3 {
		t.Fatalf("expected the 5 untouched ciphertext members to still decrypt cleanly, got %d events", len(decrypted.Events))
	}
}
