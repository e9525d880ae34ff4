package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"

	"github.com/windwardlabs/iceagent/ice"
	"github.com/windwardlabs/iceagent/internal/logging"
)

var log = logging.DefaultLogger.WithTag("iceagentd")

func main() {
	flag.Parse()

	if flagHelp {
		fmt.Print(helpString)
		os.Exit(0)
	}

	role := ice.RoleAuto
	switch flagRole {
	case "controlling":
		role = ice.RoleControlling
	case "controlled":
		role = ice.RoleControlled
	}

	conn, _, err := websocket.DefaultDialer.Dial(flagSignaling, nil)
	if err != nil {
		log.Fatalf("failed to connect to signaling server: %v", err)
	}
	defer conn.Close()

	statusColor := color.New(color.FgCyan).SprintFunc()

	agent, err := ice.NewAgent("0", 1, ice.Config{
		StunServers: []string{flagStunServer},
		RoleHint:    role,
		Lite:        flagLite,
	}, ice.Callbacks{
		OnStateChange: func(s ice.State) {
			fmt.Println(statusColor("[ice] state: " + s.String()))
			if s == ice.StateFailed {
				color.Red("[ice] connectivity establishment failed")
			}
		},
		OnCandidate: func(line string) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("a="+line+"\r\n"))
		},
		OnGatheringDone: func() {
			local, err := agentLocalDescription()
			if err != nil {
				log.Warn("failed to render local description: %v", err)
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, local)
		},
		OnRecv: func(data []byte) {
			fmt.Printf("%s\n", data)
		},
	})
	if err != nil {
		log.Fatalf("failed to create agent: %v", err)
	}
	agentLocalDescription = agent.LocalDescription

	if err := agent.Gather(); err != nil {
		log.Fatalf("gather failed: %v", err)
	}

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := agent.AddRemoteDescription(data); err != nil {
				log.Warn("failed to parse remote description: %v", err)
			}
		}
	}()

	color.Green("iceagentd started; type lines to send once connected")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := agent.Send(scanner.Bytes()); err != nil {
			log.Warn("send failed: %v", err)
		}
	}
}

// agentLocalDescription is filled in via a closure captured at agent
// construction time below; declared here so OnGatheringDone can reference
// it before the agent variable exists.
var agentLocalDescription func() ([]byte, error)
