package main

import (
	flag "github.com/spf13/pflag"
)

var (
	flagStunServer string
	flagSignaling  string
	flagRole       string
	flagLite       bool
	flagHelp       bool
)

func init() {
	flag.StringVarP(&flagStunServer, "stun-server", "s", "stun.l.google.com:19302", "STUN server host:port")
	flag.StringVarP(&flagSignaling, "signaling", "g", "ws://localhost:8089/ws", "Signaling websocket URL")
	flag.StringVarP(&flagRole, "role", "r", "auto", "ICE role: controlling, controlled, or auto")
	flag.BoolVarP(&flagLite, "lite", "l", false, "Run as an ICE-Lite agent")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const helpString = `Minimal ICE connectivity demo

Usage: iceagentd [OPTION]...

Network:
  -s, --stun-server=HOST:PORT  STUN server (default: stun.l.google.com:19302)
  -g, --signaling=URL          Signaling websocket URL (default: ws://localhost:8089/ws)
  -r, --role=ROLE              ICE role hint: controlling, controlled, auto (default: auto)
  -l, --lite                   Run as an ICE-Lite agent

Miscellaneous:
  -h, --help                   Prints this help message and exits
`
