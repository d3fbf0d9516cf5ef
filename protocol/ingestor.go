package protocol

import "log"

// Handler defines callbacks for every packet a robot can send.
// Embed NoOpHandler and override only the methods you need.
type Handler interface {
	HandleClientHello(id string, p *ClientHello)
	HandlePingResponse(id string, p *PingResponse)
	HandleQueryResponse(id string, p *QueryResponse)
	HandleActionSuccess(id string, p *ActionSuccess)
	HandleActionFail(id string, p *ActionFail)
}

// NoOpHandler implements Handler with empty methods.
type NoOpHandler struct{}

func (NoOpHandler) HandleClientHello(string, *ClientHello)     {}
func (NoOpHandler) HandlePingResponse(string, *PingResponse)   {}
func (NoOpHandler) HandleQueryResponse(string, *QueryResponse) {}
func (NoOpHandler) HandleActionSuccess(string, *ActionSuccess) {}
func (NoOpHandler) HandleActionFail(string, *ActionFail)       {}

var _ Handler = NoOpHandler{}

// Ingestor decodes raw frames and dispatches them to a Handler.
type Ingestor struct {
	handler Handler
	label   string

	// LogFunc receives decode failures. Defaults to log.Printf.
	LogFunc func(format string, args ...any)
}

// NewIngestor creates an ingestor. label prefixes log lines (usually the robot id).
func NewIngestor(handler Handler, label string) *Ingestor {
	return &Ingestor{handler: handler, label: label, LogFunc: log.Printf}
}

// HandleFrame decodes one frame and invokes the matching callback.
// Invalid frames are logged and returned as errors; server-bound types
// arriving from a robot are rejected.
func (ing *Ingestor) HandleFrame(data []byte) error {
	f, err := Decode(data)
	if err != nil {
		ing.logf("protocol: %s: drop frame: %v", ing.label, err)
		return err
	}
	return ing.Dispatch(f)
}

// Dispatch routes an already decoded frame.
func (ing *Ingestor) Dispatch(f Frame) error {
	switch p := f.Packet.(type) {
	case *ClientHello:
		ing.handler.HandleClientHello(f.PacketID, p)
	case *PingResponse:
		ing.handler.HandlePingResponse(f.PacketID, p)
	case *QueryResponse:
		ing.handler.HandleQueryResponse(f.PacketID, p)
	case *ActionSuccess:
		ing.handler.HandleActionSuccess(f.PacketID, p)
	case *ActionFail:
		ing.handler.HandleActionFail(f.PacketID, p)
	default:
		err := invalid(f.Packet.PacketType(), "not a robot packet")
		ing.logf("protocol: %s: drop frame: %v", ing.label, err)
		return err
	}
	return nil
}

func (ing *Ingestor) logf(format string, args ...any) {
	if ing.LogFunc != nil {
		ing.LogFunc(format, args...)
	}
}
