package onvif

import (
	"context"
	"net"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/sua-org/cam-snap/internal/core"
)

// Client executa as operações ONVIF usadas no snapshot: perfis, preset e stream URI.
// Não guarda estado de sessão; tokens são sempre buscados de novo.
type Client struct {
	endpoint  core.CameraEndpoint
	transport *Transport
	log       zerolog.Logger
}

func NewClient(endpoint core.CameraEndpoint, transport *Transport, log zerolog.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		transport: transport,
		log:       log.With().Str("component", "onvif").Str("camera", endpoint.Address).Logger(),
	}
}

func (c *Client) call(ctx context.Context, svc Service, body *etree.Element) ([]byte, error) {
	url, err := ServiceURL(c.endpoint.Address, svc)
	if err != nil {
		return nil, err
	}
	return c.transport.Send(ctx, url, body, Credentials{
		Username: c.endpoint.Username,
		Password: c.endpoint.Password,
	})
}

// GetProfileToken devolve o token do primeiro perfil de mídia, na ordem em que a câmera listou.
func (c *Client) GetProfileToken(ctx context.Context) (string, error) {
	const op = "GetProfiles"

	data, err := c.call(ctx, ServiceMedia, getProfilesRequest())
	if err != nil {
		return "", err
	}
	root, err := parseResponse(op, data)
	if err != nil {
		return "", err
	}

	profile := findFirst(root, NamespaceMedia, "Profiles", nil)
	if profile == nil {
		return "", &ProtocolError{Op: op, Msg: "no profiles"}
	}
	token := profile.SelectAttrValue("token", "")
	if token == "" {
		return "", &ProtocolError{Op: op, Msg: "first profile has no token"}
	}

	c.log.Info().Str("profile_token", token).Msg("media profile token")
	return token, nil
}

// GotoPreset pede o movimento PTZ. Sucesso = resposta 2xx; a câmera não confirma
// que chegou na posição, quem chama precisa esperar o tempo de acomodação.
func (c *Client) GotoPreset(ctx context.Context, profileToken, presetToken string) error {
	if _, err := c.call(ctx, ServicePTZ, gotoPresetRequest(profileToken, presetToken)); err != nil {
		return err
	}
	c.log.Info().Str("preset", presetToken).Msg("goto preset sent")
	return nil
}

// GetStreamURI resolve a URI RTSP (RTP-Unicast) do perfil e troca o IP anunciado
// pela câmera pelo endereço configurado.
func (c *Client) GetStreamURI(ctx context.Context, profileToken string) (string, error) {
	const op = "GetStreamUri"

	data, err := c.call(ctx, ServiceMedia, getStreamURIRequest(profileToken))
	if err != nil {
		return "", err
	}
	root, err := parseResponse(op, data)
	if err != nil {
		return "", err
	}

	uriElem := findFirst(root, NamespaceSchema, "Uri", func(e *etree.Element) bool {
		return strings.TrimSpace(e.Text()) != ""
	})
	if uriElem == nil {
		return "", &ProtocolError{Op: op, Msg: "uri not found"}
	}

	uri := RewriteStreamHost(strings.TrimSpace(uriElem.Text()), c.endpoint.Address)
	c.log.Info().Str("rtsp_uri", redactURI(uri)).Msg("resolved RTSP URI")
	return uri, nil
}

func parseResponse(op string, data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ProtocolError{Op: op, Msg: "malformed XML", Err: err}
	}
	if doc.Root() == nil {
		return nil, &ProtocolError{Op: op, Msg: "empty response"}
	}
	return &doc.Element, nil
}

// rtsp://[user[:pass]@]a.b.c.d
var rtspIPv4 = regexp.MustCompile(`^(rtsp://(?:[^@/\s]*@)?)\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// RewriteStreamHost troca o IPv4 embutido na URI pelo host configurado.
// Câmeras atrás de NAT costumam anunciar o IP interno. A porta do endereço
// configurado (se houver) é descartada: a porta RTSP da URI é mantida.
func RewriteStreamHost(uri, address string) string {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	if host == "" {
		return uri
	}
	return rtspIPv4.ReplaceAllString(uri, "${1}"+strings.ReplaceAll(host, "$", "$$"))
}

// redactURI esconde a senha se a câmera embutir credenciais na URI.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	userinfo, hostpart, ok := strings.Cut(rest, "@")
	if !ok || strings.Contains(userinfo, "/") {
		return uri
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":***@" + hostpart
	}
	return uri
}
