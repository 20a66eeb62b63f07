package onvif

import "fmt"

// Service é o nome lógico de um serviço ONVIF.
type Service string

const (
	ServiceDevice Service = "device"
	ServiceMedia  Service = "media"
	ServicePTZ    Service = "ptz"
)

var servicePaths = map[Service]string{
	ServiceDevice: "/onvif/device_service",
	ServiceMedia:  "/onvif/media_service",
	ServicePTZ:    "/onvif/ptz_service",
}

// ServiceURL monta a URL do serviço a partir do endereço da câmera ("ip" ou "ip:porta").
func ServiceURL(host string, svc Service) (string, error) {
	if host == "" {
		return "", &ConfigurationError{Field: "camera address", Msg: "empty"}
	}
	path, ok := servicePaths[svc]
	if !ok {
		return "", &ConfigurationError{Field: "service", Msg: fmt.Sprintf("unknown ONVIF service %q", svc)}
	}
	return "http://" + host + path, nil
}
