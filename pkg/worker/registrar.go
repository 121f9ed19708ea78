package worker

import (
	"fmt"
	"net"

	"github.com/cuemby/drover/pkg/protocol"
)

// register performs the one-shot registration handshake: announce this
// worker's address on a fresh connection, read back the assigned id, close.
func (w *Worker) register() error {
	conn, nc, err := w.dialMaster(w.cfg.RegistrationPort)
	if err != nil {
		return fmt.Errorf("dial registration endpoint: %w", err)
	}
	defer conn.Close()

	// The announced address is the interface this host uses to reach the
	// master; that is the address the master will dial back for dispatch.
	host, _, err := net.SplitHostPort(nc.LocalAddr().String())
	if err != nil {
		return fmt.Errorf("derive self address: %w", err)
	}
	w.addr = host

	if err := conn.WriteControl(host); err != nil {
		return err
	}

	line, err := conn.ReadControl()
	if err != nil {
		return err
	}
	token, id, err := protocol.ParseRegistrationReply(line)
	if err != nil {
		return err
	}
	if token != protocol.TokenWorkerAdded {
		return fmt.Errorf("master rejected registration: %s", line)
	}

	w.id = id
	return nil
}
