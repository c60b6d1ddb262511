package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/actionledger/core/pkg/store"
)

// FileWriter archives events under <root>/<agent_id>/<YYYY-MM-DD>.jsonl.
// Files are only ever opened in append mode; existing lines are never
// rewritten. agent_id is path-safe by construction (validated upstream).
type FileWriter struct {
	root string
}

func NewFileWriter(root string) (*FileWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &FileWriter{root: root}, nil
}

func (w *FileWriter) path(agentID string, day time.Time) string {
	return filepath.Join(w.root, agentID, day.UTC().Format("2006-01-02")+".jsonl")
}

func (w *FileWriter) WriteEvent(ctx context.Context, e *store.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := w.path(e.AgentID, e.Timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create agent archive dir: %w", err)
	}

	line, err := json.Marshal(RecordFromEvent(e))
	if err != nil {
		return fmt.Errorf("encode archive record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open archive file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append archive record: %w", err)
	}
	return nil
}

func (w *FileWriter) ReadEvents(ctx context.Context, agentID string, day time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(w.path(agentID, day))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("corrupt archive line: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read archive file: %w", err)
	}
	return records, nil
}

// CheckHealth probes writability by touching and removing a marker file.
func (w *FileWriter) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	probe := filepath.Join(w.root, ".health_check")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("archive not writable: %w", err)
	}
	_ = f.Close()
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("archive probe cleanup: %w", err)
	}
	return nil
}
