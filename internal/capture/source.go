package capture

import (
	"context"
	"image"
	"time"
)

// Source é a fonte de vídeo usada pela captura. A implementação real é o
// FFmpegSource; nos testes usamos uma fonte fake com frames roteirizados.
type Source interface {
	// Open conecta no stream (RTSP sobre TCP, buffer mínimo).
	Open(ctx context.Context, uri string) error
	// Grab avança um frame sem decodificar.
	Grab() error
	// Read lê e decodifica o próximo frame.
	Read() (image.Image, error)
	// Release libera a conexão/processo. Pode ser chamado mais de uma vez.
	Release() error
}

// SourceFactory cria uma fonte nova por captura (nada é compartilhado entre capturas).
type SourceFactory func() Source

// Frame é um candidato decodificado dentro da janela de coleta.
type Frame struct {
	Image     image.Image
	Timestamp time.Time
}
