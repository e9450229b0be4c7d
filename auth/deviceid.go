package auth

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// DeviceIDHeader carries the device subject when auth is disabled.
const DeviceIDHeader = "X-Device-ID"

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// deviceNamespace keeps derived device subjects apart from other UUIDv5 users.
var deviceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://florafriend.app/device"))

// DeviceSubject validates a client-supplied device id and turns it into a
// subject. ok is false for missing or malformed ids.
func DeviceSubject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !deviceIDPattern.MatchString(raw) {
		return "", false
	}
	return devicePrefix + raw, true
}

// LocalDeviceID returns a stable id for the machine the process runs on. It
// prefers a hardware UUID and otherwise mints one and keeps it in stateDir.
func LocalDeviceID(stateDir string) (string, error) {
	if ids, err := hardwareFingerprints(); err == nil && len(ids) > 0 {
		return uuid.NewSHA1(deviceNamespace, []byte(ids[0])).String(), nil
	}

	if stateDir == "" {
		return "", errors.New("no hardware id and no state dir for a generated one")
	}
	path := filepath.Join(stateDir, "device-id")
	if b, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

func hardwareFingerprints() ([]string, error) {
	switch runtime.GOOS {
	case "darwin":
		return macOSUUID()
	case "linux":
		return linuxUUID()
	default:
		return nil, errors.New("unsupported platform: " + runtime.GOOS)
	}
}

func macOSUUID() ([]string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 {
				ids = append(ids, parts[3])
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no IOPlatformUUID found")
	}
	return ids, nil
}

func linuxUUID() ([]string, error) {
	for _, p := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id"} {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(b)); id != "" {
			return []string{id}, nil
		}
	}
	return nil, errors.New("no hardware UUID found on Linux")
}
