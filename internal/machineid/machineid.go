// Package machineid computes the artifact's machine_id field. The exact
// interface-enumeration strategy is the swappable, platform-specific part
// the spec calls out as an external collaborator; the hashing contract
// (sha256(hostname||mac)[:16] hex) is part of the on-disk format and is not.
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
)

// Compute returns the 32-hex-char machine identifier for hostname: the
// leading 16 bytes of SHA-256(hostname || first non-zero MAC discovered),
// hex-encoded. If no non-zero MAC can be found, the hash runs over hostname
// alone.
func Compute(hostname string) string {
	h := sha256.New()
	h.Write([]byte(hostname))
	if mac := firstNonZeroMAC(); mac != "" {
		h.Write([]byte(mac))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

func firstNonZeroMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		if isZeroMAC(iface.HardwareAddr) {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
