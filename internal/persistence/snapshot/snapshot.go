package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"heroranker.app/internal/sim/world/kernel/model"
)

const (
	Version = 1
	Ext     = ".save.zst"
)

type Header struct {
	Version  int    `json:"version"`
	PlayerID string `json:"player_id"`
	Tick     uint64 `json:"tick"`
	SavedAt  int64  `json:"saved_at"` // epoch ms
	Digest   string `json:"digest"`
}

// Save is one persisted player state. The body is plain JSON so that older shapes can still be
// read back raw and handed to the reconciler.
type Save struct {
	Header Header          `json:"header"`
	State  model.GameState `json:"state"`
}

func FileName(savedAt int64) string {
	return strconv.FormatInt(savedAt, 10) + Ext
}

func WriteSave(path string, s Save) error {
	if s.Header.Version == 0 {
		s.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, s); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, s Save) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			_ = enc.Close()
		}
	}()
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(s.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(s.State); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	closed = true
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadSave returns the header and the raw state body of a save file.
func ReadSave(path string) (Header, []byte, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version <= 0 || h.Version > Version {
		return h, nil, fmt.Errorf("unsupported save version %d", h.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return h, nil, fmt.Errorf("read body: %w", err)
	}
	return h, body, nil
}

// List returns the save files in dir, oldest first.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type entry struct {
		path    string
		savedAt int64
	}
	var found []entry
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), Ext), 10, 64)
		if err != nil {
			continue
		}
		found = append(found, entry{path: filepath.Join(dir, e.Name()), savedAt: ms})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].savedAt < found[j].savedAt })
	out := make([]string, len(found))
	for i, e := range found {
		out[i] = e.path
	}
	return out, nil
}

// Latest returns the newest save in dir, or "" if there is none.
func Latest(dir string) string {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

// Prune deletes all but the newest keep saves. keep <= 0 keeps everything.
func Prune(dir string, keep int) (removed int, err error) {
	if keep <= 0 {
		return 0, nil
	}
	all, err := List(dir)
	if err != nil {
		return 0, err
	}
	for len(all) > keep {
		if err := os.Remove(all[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
		all = all[1:]
	}
	return removed, nil
}
