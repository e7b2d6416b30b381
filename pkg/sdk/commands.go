package sdk

import (
	"strings"
	"time"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
)

// DTrack1 UDP commands.
const (
	dtrack1Prefix       = "dtrack "
	dtrack1Activate     = "dtrack 10 3"
	dtrack1Deactivate   = "dtrack 10 0"
	dtrack1StartSending = "dtrack 31"
	dtrack1StopSending  = "dtrack 32"
)

func (s *SDK) channel(op string) (*command.Channel, error) {
	if s.cmd == nil {
		s.lastCmd = errclass.Network
		return nil, errclass.New(errclass.Network, op+": no command channel")
	}
	s.lastCmd = errclass.None
	return s.cmd, nil
}

func (s *SDK) dtrack2(op string) (*command.Channel, error) {
	if s.remote != RemoteDTrack2 {
		s.lastCmd = errclass.Network
		return nil, errclass.New(errclass.Network, op+": needs a "+RemoteDTrack2.String()+" controller, have "+s.remote.String())
	}
	return s.channel(op)
}

// SendCommand sends cmd and expects "dtrack2 ok". DTrack1 controllers get the
// command as a datagram without reply. DTrack2 controllers translate the old
// "dtrack 10 ..." start and stop commands and ignore other old ones.
func (s *SDK) SendCommand(cmd string) error {
	ch, err := s.channel("send command")
	if err != nil {
		return err
	}
	if s.remote == RemoteDTrack1 {
		return ch.Send(cmd)
	}
	if strings.HasPrefix(cmd, dtrack1Prefix) {
		switch strings.Join(strings.Fields(cmd), " ") {
		case dtrack1Activate:
			return ch.StartMeasurement()
		case dtrack1Deactivate, "dtrack 10 1":
			return ch.StopMeasurement()
		default:
			s.logger.Debug("ignoring old style command", "cmd", cmd)
			return nil
		}
	}
	return ch.Command(cmd)
}

// SendCommandWithResponse returns the controller's reply line to cmd.
func (s *SDK) SendCommandWithResponse(cmd string) (string, error) {
	ch, err := s.dtrack2("send command")
	if err != nil {
		return "", err
	}
	return ch.Exchange(cmd)
}

func (s *SDK) SetParam(parameter string) error {
	ch, err := s.dtrack2("set parameter")
	if err != nil {
		return err
	}
	return ch.SetParam(parameter)
}

func (s *SDK) SetParameter(category, name, value string) error {
	ch, err := s.dtrack2("set parameter")
	if err != nil {
		return err
	}
	return ch.SetParameter(category, name, value)
}

func (s *SDK) GetParam(parameter string) (string, error) {
	ch, err := s.dtrack2("get parameter")
	if err != nil {
		return "", err
	}
	return ch.GetParam(parameter)
}

func (s *SDK) GetParameter(category, name string) (string, error) {
	ch, err := s.dtrack2("get parameter")
	if err != nil {
		return "", err
	}
	return ch.GetParameter(category, name)
}

// StartMeasurement starts tracking. DTrack1 controllers are activated first
// and need a pause before they accept the request to start sending.
func (s *SDK) StartMeasurement() error {
	ch, err := s.channel("start measurement")
	if err != nil {
		return err
	}
	if s.remote != RemoteDTrack1 {
		return ch.StartMeasurement()
	}
	if err := ch.Send(dtrack1Activate); err != nil {
		return err
	}
	if s.startDelay > 0 {
		time.Sleep(s.startDelay)
	}
	return ch.Send(dtrack1StartSending)
}

func (s *SDK) StopMeasurement() error {
	ch, err := s.channel("stop measurement")
	if err != nil {
		return err
	}
	if s.remote != RemoteDTrack1 {
		return ch.StopMeasurement()
	}
	if err := ch.Send(dtrack1StopSending); err != nil {
		return err
	}
	return ch.Send(dtrack1Deactivate)
}

// Shutdown powers the controller off.
func (s *SDK) Shutdown() error {
	ch, err := s.dtrack2("shutdown")
	if err != nil {
		return err
	}
	return ch.Shutdown()
}

// GetMessage asks the controller for its next event message.
func (s *SDK) GetMessage() (command.Message, bool, error) {
	ch, err := s.dtrack2("get message")
	if err != nil {
		return command.Message{}, false, err
	}
	return ch.FetchMessage()
}

// Messages drains the event messages that arrived during earlier commands.
func (s *SDK) Messages() []command.Message {
	if s.cmd == nil {
		return nil
	}
	return s.cmd.Messages()
}
