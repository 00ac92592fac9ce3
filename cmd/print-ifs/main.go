// Lists the network interfaces and which of them SSDP discovery would join the multicast group on.
package main

import (
	"net"
	"os"

	"github.com/anacrolix/log"
)

func main() {
	logger := log.Default.WithNames("print-ifs")
	ifs, err := net.Interfaces()
	if err != nil {
		logger.Levelf(log.Error, "listing interfaces: %v", err)
		os.Exit(1)
	}
	for _, ifi := range ifs {
		usable := ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0
		logger.Levelf(log.Info, "%s (index %d, mtu %d, %v) ssdp=%v", ifi.Name, ifi.Index, ifi.MTU, ifi.Flags, usable)
		addrs, err := ifi.Addrs()
		if err != nil {
			logger.Levelf(log.Warning, "%s: %v", ifi.Name, err)
			continue
		}
		for _, addr := range addrs {
			logger.Levelf(log.Info, "\t%s", addr)
		}
		mcastAddrs, err := ifi.MulticastAddrs()
		if err != nil {
			logger.Levelf(log.Warning, "%s: %v", ifi.Name, err)
			continue
		}
		for _, addr := range mcastAddrs {
			logger.Levelf(log.Info, "\tmulticast %s", addr)
		}
	}
}
