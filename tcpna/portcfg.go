package tcpna

import (
	"fmt"
	"os"
)

// MaxPortName bounds the NUL-padded listen address written to port.cfg.
// The file is always exactly this long, trailing NULs preserved, so a
// reader can slurp a fixed-size record without parsing.
const MaxPortName = 128

// WritePortFile publishes addr (as returned by State.PortName) to path
// so a client process can discover it, NUL-padded to MaxPortName.
func WritePortFile(path, addr string) error {
	if len(addr) >= MaxPortName {
		return fmt.Errorf("tcpna: port name %q exceeds MaxPortName", addr)
	}
	buf := make([]byte, MaxPortName)
	copy(buf, addr)
	return os.WriteFile(path, buf, 0o644)
}

// ReadPortFile reads back a port name written by WritePortFile.
func ReadPortFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("tcpna: read port file %s: %w", path, err)
	}
	i := 0
	for i < len(buf) && buf[i] != 0 {
		i++
	}
	return string(buf[:i]), nil
}
