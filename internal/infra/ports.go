package infra

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

type PortInfo struct {
	Path         string `json:"path"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	USB          bool   `json:"usb"`
}

// ListPorts enumerates the serial ports visible to the host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Path: d.Name, USB: d.IsUSB}
		if d.IsUSB {
			info.Product = d.Product
			info.SerialNumber = d.SerialNumber
			info.VendorID = d.VID
			info.ProductID = d.PID
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}
