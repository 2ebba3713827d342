package mcduino

import (
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// usbIDs are the USB vendor ids of boards MemCARDuino usually runs on.
var usbIDs = map[string]string{
	"2341": "Arduino",
	"2A03": "Arduino",
	"1A86": "CH340",
	"0403": "FTDI",
	"10C4": "CP210x",
}

// Port is a serial port that may host a reader.
type Port struct {
	Name        string `json:"name"`
	IsUSB       bool   `json:"isUsb"`
	VID         string `json:"vid,omitempty"`
	PID         string `json:"pid,omitempty"`
	Serial      string `json:"serial,omitempty"`
	Description string `json:"description,omitempty"`
	Likely      bool   `json:"likely"`
}

// Ports lists the serial ports, flagging the ones on common Arduino USB bridges.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		p := Port{
			Name:   d.Name,
			IsUSB:  d.IsUSB,
			VID:    strings.ToUpper(d.VID),
			PID:    strings.ToUpper(d.PID),
			Serial: d.SerialNumber,
		}
		if desc, ok := usbIDs[p.VID]; ok && d.IsUSB {
			p.Description = desc
			p.Likely = true
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// Detect opens likely ports in turn and returns the first reader that
// identifies itself.
func Detect(baud int, log *zap.SugaredLogger) (*Reader, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ports, err := Ports()
	if err != nil {
		return nil, err
	}

	for _, p := range ports {
		if !p.Likely {
			continue
		}
		r, err := Open(p.Name, baud, log)
		if err != nil {
			log.Debugf("mcduino: %s: %v", p.Name, err)
			continue
		}
		return r, nil
	}
	return nil, ErrNotFound
}
