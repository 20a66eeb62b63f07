package onvif

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"
)

// DefaultTimeout é o timeout fixo de cada requisição SOAP.
const DefaultTimeout = 10 * time.Second

const soapContentType = "application/soap+xml; charset=utf-8"

// corpo de erro lido no máximo até aqui (fault costuma ser pequeno)
const maxFaultBody = 64 << 10

// Credentials para HTTP Basic.
type Credentials struct {
	Username string
	Password string
}

// Transport faz exatamente um POST por chamada, sem retry.
type Transport struct {
	client *http.Client
	log    zerolog.Logger
}

func NewTransport(log zerolog.Logger) *Transport {
	return NewTransportWithClient(&http.Client{Timeout: DefaultTimeout}, log)
}

// NewTransportWithClient permite trocar o http.Client (testes, proxy, TLS).
func NewTransportWithClient(client *http.Client, log zerolog.Logger) *Transport {
	return &Transport{
		client: client,
		log:    log.With().Str("component", "soap").Logger(),
	}
}

// Send envelopa body, envia e devolve o corpo da resposta 2xx.
func (t *Transport) Send(ctx context.Context, serviceURL string, body *etree.Element, creds Credentials) ([]byte, error) {
	payload, err := buildEnvelope(body)
	if err != nil {
		return nil, &TransportError{URL: serviceURL, Err: fmt.Errorf("build envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{URL: serviceURL, Err: err}
	}
	req.Header.Set("Content-Type", soapContentType)
	req.SetBasicAuth(creds.Username, creds.Password)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Error().Err(err).Str("url", serviceURL).Msg("soap request error")
		return nil, &TransportError{URL: serviceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxFaultBody))
		terr := &TransportError{
			URL:        serviceURL,
			StatusCode: resp.StatusCode,
			Fault:      soapFaultReason(b),
			Err:        fmt.Errorf("http status %s", resp.Status),
		}
		t.log.Error().Int("status", resp.StatusCode).Str("url", serviceURL).Str("fault", terr.Fault).Msg("soap request rejected")
		return nil, terr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: serviceURL, Err: fmt.Errorf("read body: %w", err)}
	}

	t.log.Debug().
		Str("url", serviceURL).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("soap response")
	return data, nil
}
