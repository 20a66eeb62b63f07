// internal/core/types.go
package core

import "time"

// CurrentPositionLabel é o rótulo usado quando nenhum preset foi informado.
const CurrentPositionLabel = "current"

// CameraEndpoint identifica a câmera ONVIF. Address pode vir como "ip" ou "ip:porta".
type CameraEndpoint struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// CapturedSnapshot é o frame escolhido, já gravado em disco (arquivo temporário).
// Quem recebe é responsável por apagar Path depois do upload.
type CapturedSnapshot struct {
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Preset     string    `json:"preset"`
	CapturedAt time.Time `json:"captured_at"`
}

// PresetLabel devolve o rótulo usado em nomes de arquivo, índice e tópicos.
func PresetLabel(preset string) string {
	if preset == "" {
		return CurrentPositionLabel
	}
	return preset
}

// SnapshotEvent é publicado no MQTT a cada snapshot enviado pro storage.
type SnapshotEvent struct {
	Timestamp   time.Time `json:"Timestamp"`
	RunID       string    `json:"RunID"`
	CameraIP    string    `json:"CameraIP"`
	Preset      string    `json:"Preset"`
	ObjectKey   string    `json:"ObjectKey"`
	LatestKey   string    `json:"LatestKey,omitempty"`
	SnapshotURL string    `json:"SnapshotURL,omitempty"`
	Width       int       `json:"Width"`
	Height      int       `json:"Height"`
}

// BatchStatus é publicado (retained) ao final de cada rodada.
type BatchStatus struct {
	Timestamp  time.Time `json:"Timestamp"`
	RunID      string    `json:"RunID"`
	CameraIP   string    `json:"CameraIP"`
	Trigger    string    `json:"Trigger"`
	Succeeded  []string  `json:"Succeeded"`
	Failed     []string  `json:"Failed"`
	DurationMS int64     `json:"DurationMS"`
	RSSBytes   uint64    `json:"RSSBytes,omitempty"`
	CPUPercent float64   `json:"CPUPercent,omitempty"`
}
