package ocr

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Status says whether a Tesseract binary was found.
type Status int

const (
	Missing Status = iota
	Available
)

func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "missing"
}

// Availability is the outcome of Probe.
type Availability struct {
	Status Status
	Path   string
}

// CanonicalPaths lists the install locations checked after PATH.
func CanonicalPaths(goos string) []string {
	switch goos {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		return []string{
			`C:\Program Files\Tesseract-OCR\tesseract.exe`,
			`C:\Program Files (x86)\Tesseract-OCR\tesseract.exe`,
			filepath.Join(local, "Programs", "Tesseract-OCR", "tesseract.exe"),
		}
	case "darwin":
		return []string{"/opt/homebrew/bin/tesseract", "/usr/local/bin/tesseract", "/opt/local/bin/tesseract"}
	default:
		return []string{"/usr/bin/tesseract", "/usr/local/bin/tesseract", "/snap/bin/tesseract"}
	}
}

// Probe looks for the tesseract binary in extra, then on PATH, then in
// CanonicalPaths for the running OS.
func Probe(extra ...string) Availability {
	for _, p := range extra {
		if isExecutable(p) {
			return Availability{Status: Available, Path: p}
		}
	}
	if p, err := exec.LookPath("tesseract"); err == nil {
		return Availability{Status: Available, Path: p}
	}
	for _, p := range CanonicalPaths(runtime.GOOS) {
		if isExecutable(p) {
			return Availability{Status: Available, Path: p}
		}
	}
	return Availability{Status: Missing}
}

func isExecutable(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode()&0o111 != 0
}
