package batch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Index é o index.json diário consumido pelo visualizador web.
type Index struct {
	Date      string       `json:"date"`
	Snapshots []IndexEntry `json:"snapshots"`
}

type IndexEntry struct {
	Time   string `json:"time"`
	Preset string `json:"preset"`
	Path   string `json:"path"`
	RunID  string `json:"run_id,omitempty"`
}

func newIndex(now time.Time) *Index {
	return &Index{Date: now.UTC().Format("2006-01-02"), Snapshots: []IndexEntry{}}
}

func parseIndex(data []byte, now time.Time) (*Index, error) {
	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	if ix.Date == "" {
		ix.Date = now.UTC().Format("2006-01-02")
	}
	if ix.Snapshots == nil {
		ix.Snapshots = []IndexEntry{}
	}
	return &ix, nil
}

// Upsert atualiza a entrada do mesmo preset na mesma faixa do dia (path com
// o mesmo prefixo "<data>/<faixa>_") ou acrescenta uma nova.
func (ix *Index) Upsert(entry IndexEntry, slotPrefix string) {
	for i := range ix.Snapshots {
		e := &ix.Snapshots[i]
		if e.Preset == entry.Preset && strings.HasPrefix(e.Path, slotPrefix) {
			e.Time = entry.Time
			e.Path = entry.Path
			e.RunID = entry.RunID
			return
		}
	}
	ix.Snapshots = append(ix.Snapshots, entry)
}

func (ix *Index) marshal() ([]byte, error) {
	return json.MarshalIndent(ix, "", "  ")
}

// HourLabel classifica a hora (UTC) na faixa usada nos nomes dos objetos.
func HourLabel(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h >= 5 && h < 10:
		return "early"
	case h >= 10 && h < 15:
		return "midday"
	case h >= 15 && h < 21:
		return "late"
	default:
		return "night"
	}
}

// DatePrefix: YYYY/MM/DD
func DatePrefix(t time.Time) string { return t.UTC().Format("2006/01/02") }

// ObjectKey: YYYY/MM/DD/<faixa>_<YYYY-MM-DD>_<arquivo>
func ObjectKey(t time.Time, filename string) string {
	return fmt.Sprintf("%s/%s", DatePrefix(t), slotFileName(t, filename))
}

func slotFileName(t time.Time, filename string) string {
	return fmt.Sprintf("%s_%s_%s", HourLabel(t), t.UTC().Format("2006-01-02"), filename)
}

func slotPrefix(t time.Time) string {
	return fmt.Sprintf("%s/%s_", DatePrefix(t), HourLabel(t))
}

func IndexKey(t time.Time) string { return DatePrefix(t) + "/index.json" }

func LatestKey(filename string) string { return "latest/" + filename }
