package onvif

import (
	"github.com/beevik/etree"
)

// Namespaces usados nas requisições e no parse das respostas.
const (
	NamespaceSOAP   = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceMedia  = "http://www.onvif.org/ver10/media/wsdl"
	NamespaceSchema = "http://www.onvif.org/ver10/schema"
	NamespacePTZ    = "http://www.onvif.org/ver20/ptz/wsdl"
)

// prefixos declarados uma única vez no Envelope
var envelopeNamespaces = []struct{ prefix, uri string }{
	{"s", NamespaceSOAP},
	{"trt", NamespaceMedia},
	{"tt", NamespaceSchema},
	{"tptz", NamespacePTZ},
}

// buildEnvelope embrulha o corpo num Envelope SOAP 1.2 e serializa.
func buildEnvelope(body *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	for _, ns := range envelopeNamespaces {
		env.CreateAttr("xmlns:"+ns.prefix, ns.uri)
	}
	b := env.CreateElement("s:Body")
	if body != nil {
		b.AddChild(body)
	}
	return doc.WriteToBytes()
}

func getProfilesRequest() *etree.Element {
	return etree.NewElement("trt:GetProfiles")
}

func getStreamURIRequest(profileToken string) *etree.Element {
	req := etree.NewElement("trt:GetStreamUri")
	setup := req.CreateElement("trt:StreamSetup")
	setup.CreateElement("tt:Stream").SetText("RTP-Unicast")
	setup.CreateElement("tt:Transport").CreateElement("tt:Protocol").SetText("RTSP")
	req.CreateElement("trt:ProfileToken").SetText(profileToken)
	return req
}

func gotoPresetRequest(profileToken, presetToken string) *etree.Element {
	req := etree.NewElement("tptz:GotoPreset")
	req.CreateElement("tptz:ProfileToken").SetText(profileToken)
	req.CreateElement("tptz:PresetToken").SetText(presetToken)
	return req
}

// findFirst percorre a árvore em ordem de documento e devolve o primeiro
// elemento com o namespace e nome local pedidos.
func findFirst(root *etree.Element, namespace, local string, match func(*etree.Element) bool) *etree.Element {
	if root == nil {
		return nil
	}
	for _, child := range root.ChildElements() {
		if child.Tag == local && child.NamespaceURI() == namespace && (match == nil || match(child)) {
			return child
		}
		if found := findFirst(child, namespace, local, match); found != nil {
			return found
		}
	}
	return nil
}

// soapFaultReason extrai o texto de s:Fault/s:Reason/s:Text, se houver.
func soapFaultReason(data []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return ""
	}
	fault := findFirst(&doc.Element, NamespaceSOAP, "Fault", nil)
	if fault == nil {
		return ""
	}
	if text := findFirst(fault, NamespaceSOAP, "Text", nil); text != nil {
		return text.Text()
	}
	return ""
}
