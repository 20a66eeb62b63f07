package onvif

import (
	"errors"
	"fmt"
)

// ErrUnauthorized casa (errors.Is) com TransportError de status 401/403.
var ErrUnauthorized = errors.New("camera rejected credentials")

// TransportError cobre qualquer falha de rede/HTTP numa chamada SOAP.
// StatusCode é 0 quando não houve resposta (dial, timeout, etc.).
type TransportError struct {
	URL        string
	StatusCode int
	Fault      string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Fault != "":
		return fmt.Sprintf("soap request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Fault)
	case e.StatusCode != 0:
		return fmt.Sprintf("soap request to %s failed with status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("soap request to %s failed: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrUnauthorized && (e.StatusCode == 401 || e.StatusCode == 403)
}

// ProtocolError: XML bem formado (ou não) mas sem o campo esperado.
type ProtocolError struct {
	Op  string
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConfigurationError indica serviço ou parâmetro inválido.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}
