package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	FormatONNX = "onnx"
	FormatRaw  = "raw"
)

var (
	ErrNotFound = errors.New("model artifact not found")
	ErrInvalid  = errors.New("model artifact invalid")
)

// Model is the pretrained artifact held for the process lifetime.
// Requests are classified remotely; the artifact only has to be present and loadable.
type Model struct {
	Path     string    `json:"path"`
	Format   string    `json:"format"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	Inputs   []string  `json:"inputs,omitempty"`
	Outputs  []string  `json:"outputs,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`

	closeOnce sync.Once
	ownsEnv   bool
}

// Load verifies that path exists and loads it according to format.
// An empty format is inferred from the file extension.
func Load(path, format, onnxLibPath string) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat model artifact failed: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalid, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalid, path)
	}

	if format == "" {
		format = detectFormat(path)
	}

	sum, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact failed: %w", err)
	}

	m := &Model{
		Path:     path,
		Format:   format,
		Size:     info.Size(),
		SHA256:   sum,
		LoadedAt: time.Now(),
	}

	switch format {
	case FormatRaw:
	case FormatONNX:
		if err := m.loadONNX(onnxLibPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalid, format)
	}
	return m, nil
}

func (m *Model) loadONNX(libPath string) error {
	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
		m.ownsEnv = true
	}

	inputs, outputs, err := ort.GetInputOutputInfo(m.Path)
	if err != nil {
		m.Close()
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		m.Close()
		return fmt.Errorf("onnx model has no inputs or outputs")
	}
	for _, in := range inputs {
		m.Inputs = append(m.Inputs, in.Name)
	}
	for _, out := range outputs {
		m.Outputs = append(m.Outputs, out.Name)
	}
	return nil
}

// Close releases the ONNX environment if Load created it.
func (m *Model) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.ownsEnv {
			err = ort.DestroyEnvironment()
		}
	})
	return err
}

func detectFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		return FormatONNX
	}
	return FormatRaw
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
